package address

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/clock"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/retry"
)

// Service is the AddressBook. Whenever a user has addresses exactly one of
// them is the default.
type Service interface {
	Add(ctx context.Context, userID uuid.UUID, input AddressInput) (*AddressDTO, error)
	Update(ctx context.Context, userID, addressID uuid.UUID, input UpdateAddressInput) (*AddressDTO, error)
	Delete(ctx context.Context, userID, addressID uuid.UUID) error
	SetDefault(ctx context.Context, userID, addressID uuid.UUID) (*AddressDTO, error)
	List(ctx context.Context, userID uuid.UUID) ([]AddressDTO, error)
}

type ServiceParams struct {
	Repo    *Repository
	Tx      db.TxRunner
	Clock   clock.Clock
	Retry   retry.Policy
	Metrics *metrics.CommerceMetrics
	Logger  *logger.Logger
}

type service struct {
	repo    *Repository
	tx      db.TxRunner
	clock   clock.Clock
	retry   retry.Policy
	metrics *metrics.CommerceMetrics
	logg    *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("address repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Clock == nil {
		params.Clock = clock.System{}
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		clock:   params.Clock,
		retry:   params.Retry,
		metrics: params.Metrics,
		logg:    params.Logger,
	}, nil
}

var errAddressNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "address not found")

func notFoundOr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errAddressNotFound
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

func requireUser(userID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeInvalidUserID, "user id is malformed")
	}
	return nil
}

// write runs fn in one transaction holding the owner's lock.
func (s *service) write(ctx context.Context, op string, userID uuid.UUID, fn func(ctx context.Context, repo *Repository) error) error {
	ctx = s.logg.WithOperation(ctx, "address."+op)
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if err := repo.LockOwner(ctx, userID); err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeInvalidUserID, "user does not exist")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock address book")
			}
			return fn(ctx, repo)
		})
	})
	s.metrics.AddressOp(op, err)
	return err
}

func (s *service) Add(ctx context.Context, userID uuid.UUID, input AddressInput) (*AddressDTO, error) {
	input = input.trimmed()
	if missing := input.missing(); len(missing) > 0 {
		err := pkgerrors.New(pkgerrors.CodeMissingFields, "all address fields are required").
			WithDetails(map[string]any{"fields": missing})
		s.metrics.AddressOp("add", err)
		return nil, err
	}
	if err := requireUser(userID); err != nil {
		s.metrics.AddressOp("add", err)
		return nil, err
	}

	var created models.Address
	err := s.write(ctx, "add", userID, func(ctx context.Context, repo *Repository) error {
		count, err := repo.CountByUser(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count addresses")
		}
		makeDefault := count == 0 || input.IsDefault
		if makeDefault {
			if err := repo.DemoteAll(ctx, userID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "demote addresses")
			}
		}
		created = models.Address{
			UserID:    userID,
			FullName:  input.FullName,
			Phone:     input.Phone,
			Street:    input.Street,
			City:      input.City,
			State:     input.State,
			Country:   input.Country,
			IsDefault: makeDefault,
			CreatedAt: s.clock.Now(),
		}
		if err := repo.Create(ctx, &created); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create address")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	dto := FromModel(created)
	return &dto, nil
}

// Update applies a partial update. Setting isDefault=true moves the default
// here; isDefault=false is ignored because a user cannot be left without a
// default while addresses exist.
func (s *service) Update(ctx context.Context, userID, addressID uuid.UUID, input UpdateAddressInput) (*AddressDTO, error) {
	values, blank := input.columns()
	if len(blank) > 0 {
		err := pkgerrors.New(pkgerrors.CodeMissingFields, "address fields cannot be blank").
			WithDetails(map[string]any{"fields": blank})
		s.metrics.AddressOp("update", err)
		return nil, err
	}
	if err := requireUser(userID); err != nil {
		s.metrics.AddressOp("update", err)
		return nil, err
	}

	var updated *models.Address
	err := s.write(ctx, "update", userID, func(ctx context.Context, repo *Repository) error {
		if _, err := repo.FindOwned(ctx, userID, addressID); err != nil {
			return notFoundOr(err, "load address")
		}
		if input.IsDefault != nil && *input.IsDefault {
			if err := repo.DemoteAll(ctx, userID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "demote addresses")
			}
			values["is_default"] = true
		}
		values["updated_at"] = s.clock.Now()
		ok, err := repo.UpdateColumns(ctx, userID, addressID, values)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update address")
		}
		if !ok {
			return errAddressNotFound
		}
		updated, err = repo.FindOwned(ctx, userID, addressID)
		if err != nil {
			return notFoundOr(err, "reload address")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	dto := FromModel(*updated)
	return &dto, nil
}

// Delete removes the address. If it was the default, the oldest remaining
// address is promoted first.
func (s *service) Delete(ctx context.Context, userID, addressID uuid.UUID) error {
	if err := requireUser(userID); err != nil {
		s.metrics.AddressOp("delete", err)
		return err
	}
	return s.write(ctx, "delete", userID, func(ctx context.Context, repo *Repository) error {
		target, err := repo.FindOwned(ctx, userID, addressID)
		if err != nil {
			return notFoundOr(err, "load address")
		}
		if target.IsDefault {
			next, err := repo.OldestOther(ctx, userID, addressID)
			switch {
			case err == nil:
				if err := repo.Delete(ctx, userID, addressID); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete address")
				}
				_, err := repo.UpdateColumns(ctx, userID, next.ID, map[string]any{
					"is_default": true,
					"updated_at": s.clock.Now(),
				})
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "promote address")
				}
				return nil
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find replacement default")
			}
		}
		if err := repo.Delete(ctx, userID, addressID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete address")
		}
		return nil
	})
}

func (s *service) SetDefault(ctx context.Context, userID, addressID uuid.UUID) (*AddressDTO, error) {
	if err := requireUser(userID); err != nil {
		s.metrics.AddressOp("set_default", err)
		return nil, err
	}
	var target *models.Address
	err := s.write(ctx, "set_default", userID, func(ctx context.Context, repo *Repository) error {
		var err error
		target, err = repo.FindOwned(ctx, userID, addressID)
		if err != nil {
			return notFoundOr(err, "load address")
		}
		if err := repo.DemoteAll(ctx, userID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "demote addresses")
		}
		now := s.clock.Now()
		if _, err := repo.UpdateColumns(ctx, userID, addressID, map[string]any{"is_default": true, "updated_at": now}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "promote address")
		}
		target.IsDefault = true
		target.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	dto := FromModel(*target)
	return &dto, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID) ([]AddressDTO, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list addresses")
	}
	out := make([]AddressDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromModel(row))
	}
	return out, nil
}
