package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"stickerboard/internal/models"
	"stickerboard/internal/store"
)

// BackupVersion is written into every export.
const BackupVersion = "1.0"

// BackupData represents the complete store backup structure
type BackupData struct {
	Version     string             `json:"version"`
	ExportedAt  time.Time          `json:"exported_at"`
	Accounts    []AccountBackup    `json:"accounts"`
	Credentials []CredentialBackup `json:"credentials"`
	Boards      []models.Board     `json:"boards"`
}

// AccountBackup represents an account record for backup, including its PIN hash
type AccountBackup struct {
	ID          string    `json:"id"`
	Email       string    `json:"email,omitempty"`
	ParentPin   string    `json:"parent_pin,omitempty"`
	IsAnonymous bool      `json:"is_anonymous"`
	CreatedAt   time.Time `json:"created_at"`
}

// CredentialBackup represents a credentials record for backup
type CredentialBackup struct {
	AccountID    string `json:"account_id"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
}

// ImportStats counts what an import wrote and what it skipped because the
// record already existed.
type ImportStats struct {
	Accounts    int
	Credentials int
	Boards      int
	Skipped     int
}

// BackupService handles store backup and restore operations
type BackupService struct {
	store store.Store
	log   *zap.Logger
	now   func() time.Time
}

// NewBackupService creates a new backup service
func NewBackupService(st store.Store, log *zap.Logger) *BackupService {
	if log == nil {
		log = zap.NewNop()
	}
	return &BackupService{store: st, log: log, now: time.Now}
}

// Export creates a complete backup of the store to a file
func (s *BackupService) Export(ctx context.Context, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	if err := s.ExportToWriter(ctx, file); err != nil {
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}

	s.log.Info("store exported", zap.String("path", outputPath))
	return nil
}

// ExportToWriter writes the backup as indented JSON
func (s *BackupService) ExportToWriter(ctx context.Context, w io.Writer) error {
	backup, err := s.collect(ctx)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(backup); err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}

	s.log.Info("backup written",
		zap.Int("accounts", len(backup.Accounts)),
		zap.Int("credentials", len(backup.Credentials)),
		zap.Int("boards", len(backup.Boards)))
	return nil
}

func (s *BackupService) collect(ctx context.Context) (*BackupData, error) {
	backup := &BackupData{
		Version:     BackupVersion,
		ExportedAt:  s.now().UTC(),
		Accounts:    []AccountBackup{},
		Credentials: []CredentialBackup{},
		Boards:      []models.Board{},
	}

	// Export accounts
	docs, err := s.store.List(ctx, models.CollectionAccounts, store.Query{})
	if err != nil {
		return nil, storeError("failed to export accounts", err)
	}
	for _, doc := range docs {
		a, err := models.DecodeAccount(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to export account %s: %w", doc.ID(), err)
		}
		backup.Accounts = append(backup.Accounts, AccountBackup{
			ID:          a.ID,
			Email:       a.Email,
			ParentPin:   a.ParentPinHash,
			IsAnonymous: a.IsAnonymous,
			CreatedAt:   a.CreatedAt,
		})
	}

	// Export credentials
	docs, err = s.store.List(ctx, models.CollectionCredentials, store.Query{})
	if err != nil {
		return nil, storeError("failed to export credentials", err)
	}
	for _, doc := range docs {
		c, err := models.DecodeCredential(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to export credentials %s: %w", doc.ID(), err)
		}
		backup.Credentials = append(backup.Credentials, CredentialBackup{
			AccountID:    c.AccountID,
			Email:        c.Email,
			PasswordHash: c.PasswordHash,
		})
	}

	// Export boards, oldest first
	docs, err = s.store.List(ctx, models.CollectionBoards, store.Query{
		OrderBy: []store.Order{{Field: models.FieldCreatedAt}},
	})
	if err != nil {
		return nil, storeError("failed to export boards", err)
	}
	for _, doc := range docs {
		b, err := models.DecodeBoard(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to export board %s: %w", doc.ID(), err)
		}
		backup.Boards = append(backup.Boards, *b)
	}

	return backup, nil
}

// Import restores a backup file into the store
func (s *BackupService) Import(ctx context.Context, inputPath string) (*ImportStats, error) {
	file, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	return s.ImportFromReader(ctx, file)
}

// ImportFromReader restores a backup from a reader. Records whose id
// already exists are skipped, so importing the same backup twice is safe.
// Every board is checked against the board invariants before anything is
// written.
func (s *BackupService) ImportFromReader(ctx context.Context, reader io.Reader) (*ImportStats, error) {
	var backup BackupData
	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(&backup); err != nil {
		return nil, fmt.Errorf("failed to decode backup: %w", err)
	}
	if backup.Version != BackupVersion {
		return nil, fmt.Errorf("unsupported backup version %q", backup.Version)
	}

	s.log.Info("importing backup",
		zap.String("version", backup.Version),
		zap.Time("exported_at", backup.ExportedAt))

	// Validate boards up front
	for i := range backup.Boards {
		doc := backup.Boards[i].Fields()
		doc[models.FieldID] = backup.Boards[i].ID
		if _, err := models.DecodeBoard(doc); err != nil {
			return nil, fmt.Errorf("invalid board %q in backup: %w", backup.Boards[i].ID, err)
		}
	}

	stats := &ImportStats{}
	insert := func(collection, id string, fields map[string]interface{}, counter *int) error {
		err := s.store.CreateWithID(ctx, collection, id, fields)
		switch {
		case err == nil:
			*counter++
		case errors.Is(err, store.ErrDuplicate):
			stats.Skipped++
			s.log.Debug("skipping existing record", zap.String("collection", collection), zap.String("id", id))
		default:
			return storeError(fmt.Sprintf("failed to import %s %s", collection, id), err)
		}
		return nil
	}

	// Import in order of dependencies
	for _, a := range backup.Accounts {
		account := models.Account{
			ID:            a.ID,
			Email:         a.Email,
			ParentPinHash: a.ParentPin,
			IsAnonymous:   a.IsAnonymous,
			CreatedAt:     a.CreatedAt,
		}
		if err := insert(models.CollectionAccounts, a.ID, account.Fields(), &stats.Accounts); err != nil {
			return stats, err
		}
	}
	for _, c := range backup.Credentials {
		cred := models.Credential{AccountID: c.AccountID, Email: c.Email, PasswordHash: c.PasswordHash}
		if err := insert(models.CollectionCredentials, c.AccountID, cred.Fields(), &stats.Credentials); err != nil {
			return stats, err
		}
	}
	for i := range backup.Boards {
		b := &backup.Boards[i]
		if err := insert(models.CollectionBoards, b.ID, b.Fields(), &stats.Boards); err != nil {
			return stats, err
		}
	}

	s.log.Info("backup imported",
		zap.Int("accounts", stats.Accounts),
		zap.Int("credentials", stats.Credentials),
		zap.Int("boards", stats.Boards),
		zap.Int("skipped", stats.Skipped))
	return stats, nil
}
