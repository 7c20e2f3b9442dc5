package store

import (
	"fmt"
	"time"
)

// PutUpload writes tm_uploaded_files_<key>.
func (s *Store) PutUpload(key string, file UploadedFile) {
	file.Key = key
	if file.Timestamp.IsZero() {
		file.Timestamp = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads[key] = &file
}

// GetUpload reads tm_uploaded_files_<key>.
func (s *Store) GetUpload(key string) (UploadedFile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.uploads[key]
	if !ok {
		return UploadedFile{}, false
	}
	return *f, true
}

// PutUploadQuotaExceeded stores a null-data sentinel when storage quota is
// exceeded, per spec.md §3: downstream stages proceed without the image.
func (s *Store) PutUploadQuotaExceeded(key, mimeType, reason string) {
	s.PutUpload(key, UploadedFile{Type: mimeType, Error: reason})
}

// PutCredentials writes tm_aws_credentials.
func (s *Store) PutCredentials(c Credentials) {
	c.LoadedAt = time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = &c
}

// TakeCredentials reads tm_aws_credentials and clears the slot, per
// spec.md §4.5: "Credentials expire after 4 hours and are cleared on
// retrieval." Returns an error if absent or expired.
func (s *Store) TakeCredentials() (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds == nil {
		return Credentials{}, fmt.Errorf("store: no credentials loaded")
	}
	c := *s.creds
	s.creds = nil
	if time.Since(c.LoadedAt) > credentialTTL {
		return Credentials{}, fmt.Errorf("store: credentials expired at %s", c.LoadedAt.Add(credentialTTL))
	}
	return c, nil
}

// ClearAllData removes every job, upload, and trail, but preserves
// credentials, per spec.md §4.3's clear_all_data contract.
func (s *Store) ClearAllData() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = make(map[string]*jobRecord)
	s.order = nil
	s.uploads = make(map[string]*UploadedFile)
}
