package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/chalkboard-sms/chalkboard/internal/shared"
)

// Service resolves school identifiers and administers the catalog.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	audit  *shared.AuditLogger

	// legacyLiteralCodes restores the historical behaviour of treating any
	// well-formed code token as a canonical code without checking that the
	// school exists. Off by default; every resolution through this path is
	// logged so it can be audited away.
	legacyLiteralCodes bool
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, logger *slog.Logger, audit *shared.AuditLogger, legacyLiteralCodes bool) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, audit: audit, legacyLiteralCodes: legacyLiteralCodes}
}

// Resolve maps a human-supplied school identifier to its canonical code.
//
// Matching order: exact case-insensitive code, then case-insensitive display
// name, then the literal code-token compatibility path. The literal path only
// succeeds when the legacy flag is enabled; with the flag off an identifier
// that matches no registered school returns ErrSchoolNotFound regardless of
// how code-like it looks.
func (s *Service) Resolve(ctx context.Context, identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", shared.ErrSchoolNotFound
	}

	code := CanonicalizeCode(identifier)
	school, err := s.repo.FindByCode(ctx, code)
	if err == nil {
		return school.Code, nil
	}
	if !errors.Is(err, shared.ErrSchoolNotFound) {
		return "", err
	}

	school, err = s.repo.FindByName(ctx, identifier)
	if err == nil {
		return school.Code, nil
	}
	if !errors.Is(err, shared.ErrSchoolNotFound) {
		return "", err
	}

	if s.legacyLiteralCodes && IsCodeToken(identifier) {
		s.logger.Warn("registry: literal code pass-through",
			slog.String("identifier", identifier),
			slog.String("code", code))
		if s.audit != nil {
			_ = s.audit.Record(ctx, shared.AuditLog{
				ActorID: "system",
				School:  code,
				Action:  "resolve.literal",
				Entity:  "school",
				Meta:    map[string]any{"identifier": identifier},
			})
		}
		return code, nil
	}

	return "", shared.ErrSchoolNotFound
}

// Get fetches a school by canonical code.
func (s *Service) Get(ctx context.Context, code string) (School, error) {
	return s.repo.FindByCode(ctx, CanonicalizeCode(code))
}

// FallbackOverrides returns the registry-level fallback matrix for a school.
// A nil matrix is a valid, common state.
func (s *Service) FallbackOverrides(ctx context.Context, code string) (PermissionMatrix, error) {
	school, err := s.repo.FindByCode(ctx, CanonicalizeCode(code))
	if err != nil {
		return nil, err
	}
	return school.FallbackOverrides, nil
}

// Register adds a new school to the catalog.
func (s *Service) Register(ctx context.Context, code, displayName string) (School, error) {
	code = CanonicalizeCode(code)
	if !codeToken.MatchString(code) {
		return School{}, fmt.Errorf("registry: malformed school code %q", code)
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return School{}, errors.New("registry: display name required")
	}
	school, err := s.repo.Insert(ctx, School{Code: code, DisplayName: displayName})
	if err != nil {
		return School{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID: actorFromContext(ctx),
			School:  code,
			Action:  "school.register",
			Entity:  "school",
		})
	}
	return school, nil
}

// SetFallbackOverrides replaces a school's registry-level fallback matrix.
func (s *Service) SetFallbackOverrides(ctx context.Context, code string, matrix PermissionMatrix) error {
	return s.repo.SetFallbackOverrides(ctx, CanonicalizeCode(code), matrix)
}

// Deactivate soft-deactivates a school. Schools are never deleted while
// referenced by live tenant data.
func (s *Service) Deactivate(ctx context.Context, code string) error {
	code = CanonicalizeCode(code)
	if err := s.repo.SetActive(ctx, code, false); err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID: actorFromContext(ctx),
			School:  code,
			Action:  "school.deactivate",
			Entity:  "school",
		})
	}
	return nil
}

// List returns schools ordered by display name.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]School, error) {
	schools, err := s.repo.List(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	coll := collate.New(language.English, collate.IgnoreCase)
	sort.SliceStable(schools, func(i, j int) bool {
		return coll.CompareString(schools[i].DisplayName, schools[j].DisplayName) < 0
	})
	return schools, nil
}

func actorFromContext(ctx context.Context) string {
	if id, ok := shared.IdentityFromContext(ctx); ok && id.ActorID != "" {
		return id.ActorID
	}
	return "system"
}
