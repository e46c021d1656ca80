package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/MrEthical07/authcore"
)

// Profiles reads account profiles from the profiles table.
type Profiles struct {
	db DBTX
}

var _ authcore.ProfileProvider = (*Profiles)(nil)

func NewProfiles(db DBTX) *Profiles {
	return &Profiles{db: db}
}

// GetProfile returns authcore.ErrProfileMissing when no row matches or
// userID is not a UUID. Soft-deleted rows are returned with DeletedAt set.
func (p *Profiles) GetProfile(ctx context.Context, userID string) (*authcore.Profile, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, authcore.ErrProfileMissing
	}

	query := `SELECT id::text, email, tier, role, is_approved, deleted_at FROM profiles WHERE id = $1`

	var (
		prof      authcore.Profile
		deletedAt sql.NullTime
	)
	err := p.db.QueryRowContext(ctx, query, userID).Scan(
		&prof.ID,
		&prof.Email,
		&prof.Tier,
		&prof.Role,
		&prof.IsApproved,
		&deletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authcore.ErrProfileMissing
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		prof.DeletedAt = &t
	}
	return &prof, nil
}
