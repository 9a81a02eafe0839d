package auth

import (
	"context"
	"database/sql"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Profiles stores the role specific rows created at registration
type Profiles interface {
	CreateDoctorTx(ctx context.Context, tx bun.IDB, profile *DoctorProfile) (*DoctorProfile, error)
	CreatePatientTx(ctx context.Context, tx bun.IDB, profile *PatientProfile) (*PatientProfile, error)
	FindForUser(ctx context.Context, user *User) (*Profile, error)
	FindForUserTx(ctx context.Context, tx bun.IDB, user *User) (*Profile, error)
}

type profiles struct {
	db  *bun.DB
	now func() time.Time
}

var _ Profiles = (*profiles)(nil)

// NewProfilesRepository creates the doctor/patient profile store
func NewProfilesRepository(db *bun.DB) Profiles {
	return &profiles{db: db, now: time.Now}
}

func (p *profiles) CreateDoctorTx(ctx context.Context, tx bun.IDB, profile *DoctorProfile) (*DoctorProfile, error) {
	now := p.now().UTC()
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	profile.CreatedAt, profile.UpdatedAt = now, now

	if _, err := tx.NewInsert().Model(profile).Exec(ctx); err != nil {
		return nil, wrapStoreError(err, "failed to create doctor profile")
	}
	return profile, nil
}

func (p *profiles) CreatePatientTx(ctx context.Context, tx bun.IDB, profile *PatientProfile) (*PatientProfile, error) {
	now := p.now().UTC()
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	profile.CreatedAt, profile.UpdatedAt = now, now

	if _, err := tx.NewInsert().Model(profile).Exec(ctx); err != nil {
		return nil, wrapStoreError(err, "failed to create patient profile")
	}
	return profile, nil
}

func (p *profiles) FindForUser(ctx context.Context, user *User) (*Profile, error) {
	return p.FindForUserTx(ctx, p.db, user)
}

// FindForUserTx returns nil without error for roles that carry no profile
func (p *profiles) FindForUserTx(ctx context.Context, tx bun.IDB, user *User) (*Profile, error) {
	if user == nil || !user.Role.HasProfile() {
		return nil, nil
	}

	var err error
	switch user.Role {
	case RoleDoctor:
		doctor := &DoctorProfile{}
		err = tx.NewSelect().Model(doctor).Where("?TableAlias.user_id = ?", user.ID).Limit(1).Scan(ctx)
		if err == nil {
			return DoctorProfileView(doctor), nil
		}
	case RolePatient:
		patient := &PatientProfile{}
		err = tx.NewSelect().Model(patient).Where("?TableAlias.user_id = ?", user.ID).Limit(1).Scan(ctx)
		if err == nil {
			return PatientProfileView(patient), nil
		}
	}

	if goerrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return nil, wrapStoreError(err, "failed to find user profile")
}

// DoctorProfileView converts a doctor row into a Profile
func DoctorProfileView(d *DoctorProfile) *Profile {
	return &Profile{ID: d.ID.String(), Type: string(RoleDoctor), FirstName: d.FirstName, LastName: d.LastName}
}

// PatientProfileView converts a patient row into a Profile
func PatientProfileView(p *PatientProfile) *Profile {
	return &Profile{ID: p.ID.String(), Type: string(RolePatient), FirstName: p.FirstName, LastName: p.LastName}
}
