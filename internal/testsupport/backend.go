package testsupport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// StubBackend is an in-process intake backend for tests. Handlers can be
// scripted to fail a fixed number of times before succeeding.
type StubBackend struct {
	Server *httptest.Server

	mu             sync.Mutex
	uploadCalls    int
	submitCalls    int
	uploadFailures int
	submitFailures int
	submitStatus   int
	nextReceipt    int
	receipts       []string
}

// NewStubBackend starts a stub intake backend and shuts it down on cleanup.
func NewStubBackend(t testing.TB) *StubBackend {
	t.Helper()

	stub := &StubBackend{}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/files/upload", stub.handleUpload)
	mux.HandleFunc("/submission", stub.handleSubmit)

	stub.Server = httptest.NewServer(mux)
	t.Cleanup(stub.Server.Close)
	return stub
}

// URL returns the backend base URL.
func (s *StubBackend) URL() string {
	return s.Server.URL
}

// FailUploads makes the next n upload calls return 503.
func (s *StubBackend) FailUploads(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadFailures = n
}

// FailSubmits makes the next n submission calls fail with the given status.
func (s *StubBackend) FailSubmits(n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitFailures = n
	s.submitStatus = status
}

// UploadCalls returns how many upload requests the backend has served.
func (s *StubBackend) UploadCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploadCalls
}

// SubmitCalls returns how many submission requests the backend has served.
func (s *StubBackend) SubmitCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitCalls
}

// Receipts returns the receipt ids issued so far, in order.
func (s *StubBackend) Receipts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.receipts...)
}

func (s *StubBackend) handleUpload(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.uploadCalls++
	fail := s.uploadFailures > 0
	if fail {
		s.uploadFailures--
	}
	n := s.uploadCalls
	s.mu.Unlock()

	if fail {
		http.Error(w, "upload unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := r.ParseMultipartForm(16 << 20); err != nil {
		http.Error(w, "bad multipart body", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"url": fmt.Sprintf("/static/upload-%d.jpg", n),
	})
}

func (s *StubBackend) handleSubmit(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.submitCalls++
	fail := s.submitFailures > 0
	status := s.submitStatus
	if fail {
		s.submitFailures--
	}
	var receipt string
	if !fail {
		s.nextReceipt++
		receipt = fmt.Sprintf("R%03d", s.nextReceipt)
		s.receipts = append(s.receipts, receipt)
	}
	s.mu.Unlock()

	if fail {
		if status == 0 {
			status = http.StatusInternalServerError
		}
		http.Error(w, "submission rejected", status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"receipt_id":   receipt,
		"receipt_hash": "hash-" + receipt,
		"qr_data":      "qr-" + receipt,
	})
}
