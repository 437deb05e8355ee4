// Package storetest provides an in-memory RemoteStore for tests.
package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/ternarybob/portico/internal/interfaces"
	"github.com/ternarybob/portico/internal/models"
)

// Row is one stored record in the store's wire shape.
type Row struct {
	Name        string `json:"name"`
	Course      string `json:"course"`
	Reason      string `json:"reason"`
	Status      string `json:"status"`
	Timestamp   int64  `json:"timestamp"`
	ExitTime    string `json:"exitTime"`
	Responsible string `json:"responsable"`
}

// logged is a notification log entry. at is the instant the store recorded the event,
// which for a completion is later than the record's creation timestamp.
type logged struct {
	event models.NotificationEvent
	at    int64
}

// Store is a concurrency-safe in-memory store that behaves like the script endpoint:
// mutations apply immediately and Read returns the full list.
type Store struct {
	mu sync.Mutex

	rows          []Row
	notifications []logged
	ranking       []models.CourseCount
	monthly       models.MonthlyStats
	users         []models.Operator

	// Err, when set for an action name, is returned instead of performing it.
	Err map[string]error
	// RawRead, when non-nil, replaces the Read payload.
	RawRead []byte

	calls     map[string]int
	lastCheck []int64
}

var _ interfaces.RemoteStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{Err: map[string]error{}, calls: map[string]int{}}
}

// Seed replaces the stored rows.
func (s *Store) Seed(rows ...Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append([]Row(nil), rows...)
}

// Rows returns a copy of the stored rows.
func (s *Store) Rows() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Row(nil), s.rows...)
}

// SetNotifications replaces the notification log. Each item is logged at its own timestamp.
func (s *Store) SetNotifications(items ...models.NotificationEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = nil
	for _, item := range items {
		s.notifications = append(s.notifications, logged{event: item, at: item.Timestamp})
	}
}

// LogNotification appends an item recorded at the given instant, e.g. the completion of a
// record created long before.
func (s *Store) LogNotification(item models.NotificationEvent, at int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, logged{event: item, at: at})
}

// SetRanking replaces the ranking.
func (s *Store) SetRanking(ranking ...models.CourseCount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ranking = append([]models.CourseCount(nil), ranking...)
}

// SetMonthlyStats replaces the monthly series.
func (s *Store) SetMonthlyStats(stats models.MonthlyStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monthly = stats
}

// SetUsers replaces the operator roster.
func (s *Store) SetUsers(users ...models.Operator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append([]models.Operator(nil), users...)
}

// SetErr makes action fail with err; nil clears it.
func (s *Store) SetErr(action string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.Err, action)
		return
	}
	s.Err[action] = err
}

// Calls returns how many times action was invoked.
func (s *Store) Calls(action string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[action]
}

// TotalCalls returns the number of calls across all actions.
func (s *Store) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// Mutations returns the number of mutating calls.
func (s *Store) Mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls["add"] + s.calls["updateState"] + s.calls["finish"] + s.calls["delete"] + s.calls["saveUser"]
}

// LastChecks returns every lastCheck value passed to CheckNotifications.
func (s *Store) LastChecks() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.lastCheck...)
}

func (s *Store) begin(action string) error {
	s.calls[action]++
	return s.Err[action]
}

func (s *Store) Read(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("read"); err != nil {
		return nil, err
	}
	if s.RawRead != nil {
		return append([]byte(nil), s.RawRead...), nil
	}
	rows := s.rows
	if rows == nil {
		rows = []Row{}
	}
	return json.Marshal(rows)
}

func (s *Store) CheckNotifications(ctx context.Context, lastCheck int64) (*models.NotificationBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCheck = append(s.lastCheck, lastCheck)
	if err := s.begin("checkNotifications"); err != nil {
		return nil, err
	}
	batch := &models.NotificationBatch{}
	for _, n := range s.notifications {
		if n.at > lastCheck {
			batch.Items = append(batch.Items, n.event)
		}
	}
	batch.HasNew = len(batch.Items) > 0
	return batch, nil
}

func (s *Store) GetRanking(ctx context.Context) ([]models.CourseCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("getRanking"); err != nil {
		return nil, err
	}
	return append([]models.CourseCount(nil), s.ranking...), nil
}

func (s *Store) GetMonthlyStats(ctx context.Context) (*models.MonthlyStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("getMonthlyStats"); err != nil {
		return nil, err
	}
	stats := s.monthly
	return &stats, nil
}

func (s *Store) GetUsers(ctx context.Context) ([]models.Operator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("getUsuarios"); err != nil {
		return nil, err
	}
	return append([]models.Operator(nil), s.users...), nil
}

func (s *Store) Add(ctx context.Context, record models.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("add"); err != nil {
		return err
	}
	s.rows = append(s.rows, Row{
		Name:        record.Name,
		Course:      record.Course,
		Reason:      record.Reason,
		Status:      string(record.Status),
		Timestamp:   record.CreatedAt,
		Responsible: record.Responsible,
	})
	sort.SliceStable(s.rows, func(i, j int) bool { return s.rows[i].Timestamp < s.rows[j].Timestamp })
	return nil
}

func (s *Store) UpdateState(ctx context.Context, createdAt int64, status models.Status, responsible string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("updateState"); err != nil {
		return err
	}
	row, err := s.find(createdAt)
	if err != nil {
		return err
	}
	row.Status = string(status)
	row.Responsible = responsible
	return nil
}

func (s *Store) Finish(ctx context.Context, createdAt int64, exitTime string, responsible string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("finish"); err != nil {
		return err
	}
	row, err := s.find(createdAt)
	if err != nil {
		return err
	}
	row.ExitTime = exitTime
	row.Responsible = responsible
	return nil
}

func (s *Store) Delete(ctx context.Context, createdAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("delete"); err != nil {
		return err
	}
	for i := range s.rows {
		if s.rows[i].Timestamp == createdAt {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			return nil
		}
	}
	return &models.RemoteRejectedError{Action: "delete", Message: "Registro no encontrado"}
}

func (s *Store) SaveUser(ctx context.Context, operator models.Operator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("saveUser"); err != nil {
		return err
	}
	s.users = append(s.users, operator)
	return nil
}

func (s *Store) find(createdAt int64) (*Row, error) {
	for i := range s.rows {
		if s.rows[i].Timestamp == createdAt {
			return &s.rows[i], nil
		}
	}
	return nil, &models.RemoteRejectedError{Action: "find", Message: fmt.Sprintf("Registro %d no encontrado", createdAt)}
}
