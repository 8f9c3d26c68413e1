package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"retflow/internal/warehouse"
	"retflow/pkg/models"
)

// TestConfig returns a populated configuration suitable for unit tests.
func TestConfig() *models.Config {
	return &models.Config{
		Warehouse: models.Warehouse{
			Dialect:  "redshift",
			Host:     "warehouse.test.local",
			Port:     5439,
			Username: "etl",
			Database: "analytics",
			Schema:   "public",
			SSLMode:  "require",
		},
		Storage: models.Storage{
			Bucket: "test-bucket",
			Prefix: "retention",
			Region: "us-east-1",
		},
		Retention: models.Retention{
			SessionsTable:     "daily_sessions",
			AggregateTable:    "retention_aggregate",
			UserColumn:        "player_id",
			SessionDateColumn: "session_date",
			CohortDateColumn:  "install_date",
			Offsets:           []int{1, 7, 30},
			VerifySampleDays:  7,
		},
		Convert: models.Convert{
			TableName: "retention",
		},
		Dashboard: models.Dashboard{
			BaseURL:  "http://dashboard.test.local",
			Username: "publisher",
			Folder:   "Analytics",
		},
	}
}

// MockWarehouse returns a warehouse service backed by sqlmock, plus the
// mock for expectation setup.
func MockWarehouse(t *testing.T, dialect string) (*warehouse.Service, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	svc, err := warehouse.NewServiceWithDB(db, warehouse.Config{
		Dialect:  dialect,
		Host:     "warehouse.test.local",
		Port:     5439,
		Account:  "testacct",
		Username: "etl",
		Password: "secret",
		Database: "analytics",
		Schema:   "public",
		Timeout:  30 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to create warehouse service: %v", err)
	}
	return svc, mock
}

// DashboardServer is a canned in-process dashboard API for tests.
type DashboardServer struct {
	*httptest.Server

	mu             sync.Mutex
	signIns        int
	signOuts       int
	uploads        int
	seenKeys       map[string]bool
	folders        []map[string]string
	rejectSignIn   bool
	failSignOut    bool
	uploadStatus   int
}

// NewDashboardServer starts a fake dashboard server with one folder
// named "Analytics".
func NewDashboardServer(t *testing.T) *DashboardServer {
	t.Helper()

	s := &DashboardServer{
		seenKeys: make(map[string]bool),
		folders: []map[string]string{
			{"id": "f-1", "name": "Analytics"},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/signin", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.signIns++
		reject := s.rejectSignIn
		s.mu.Unlock()

		if reject {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid credentials"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"token":   "tok-123",
			"site_id": "site-1",
		})
	})
	mux.HandleFunc("/api/auth/signout", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.signOuts++
		fail := s.failSignOut
		s.mu.Unlock()

		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/api/sites/site-1/folders", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Auth-Token") != "tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		s.mu.Lock()
		folders := s.folders
		s.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"folders": folders})
	})
	mux.HandleFunc("/api/sites/site-1/datasources", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Auth-Token") != "tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		key := r.Header.Get("X-Idempotency-Key")
		s.mu.Lock()
		s.uploads++
		status := s.uploadStatus
		duplicate := s.seenKeys[key]
		s.seenKeys[key] = true
		s.mu.Unlock()

		if status != 0 {
			w.WriteHeader(status)
			return
		}
		if duplicate {
			w.WriteHeader(http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id":   "ds-1",
			"name": "retention",
		})
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// RejectSignIn makes subsequent sign-ins fail with 401.
func (s *DashboardServer) RejectSignIn() {
	s.mu.Lock()
	s.rejectSignIn = true
	s.mu.Unlock()
}

// FailSignOut makes subsequent sign-outs fail with 500.
func (s *DashboardServer) FailSignOut() {
	s.mu.Lock()
	s.failSignOut = true
	s.mu.Unlock()
}

// FailUploads makes subsequent uploads return the given status.
func (s *DashboardServer) FailUploads(status int) {
	s.mu.Lock()
	s.uploadStatus = status
	s.mu.Unlock()
}

// ClearFolders removes all folders from the fake server.
func (s *DashboardServer) ClearFolders() {
	s.mu.Lock()
	s.folders = nil
	s.mu.Unlock()
}

// SignIns returns the number of sign-in requests observed.
func (s *DashboardServer) SignIns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signIns
}

// SignOuts returns the number of sign-out requests observed.
func (s *DashboardServer) SignOuts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signOuts
}

// Uploads returns the number of upload requests observed.
func (s *DashboardServer) Uploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploads
}
