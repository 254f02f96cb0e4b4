package orgs

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/orbsec/organization-service/pkg/events"
	"github.com/orbsec/organization-service/pkg/faults"
	"github.com/orbsec/organization-service/pkg/licensing"
	"github.com/orbsec/organization-service/pkg/observability"
	"github.com/orbsec/organization-service/pkg/resilience"
	"github.com/orbsec/organization-service/pkg/storage"
)

// Service orchestrates organization operations
type Service struct {
	store    storage.Store
	licenses licensing.Gateway
	notifier events.Notifier
	registry *resilience.Registry
	logger   *observability.Logger
	newID    func() string
}

// Option configures a Service
type Option func(*Service)

// WithIDGenerator replaces the identity generator used by Create
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithLogger sets the service logger
func WithLogger(logger *observability.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates the orchestrator
func NewService(store storage.Store, licenses licensing.Gateway, notifier events.Notifier, registry *resilience.Registry, opts ...Option) *Service {
	s := &Service{
		store:    store,
		licenses: licenses,
		notifier: notifier,
		registry: registry,
		logger:   observability.NewNopLogger(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindByID returns the organization with the given id. While the store is
// unreachable a placeholder carrying the requested id is returned instead.
func (s *Service) FindByID(ctx context.Context, id string) (*Organization, error) {
	org, err := resilience.Execute(ctx, s.registry, resilience.PolicyStoreRead,
		func(ctx context.Context) (*Organization, error) {
			rec, err := s.store.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			return fromRecord(rec), nil
		},
		func(ctx context.Context, cause error) (*Organization, error) {
			s.degraded(ctx, resilience.PolicyStoreRead, id, cause).
				Warn("store unavailable, serving placeholder organization")
			return placeholderOrganization(id), nil
		})
	if faults.Is(err, faults.NotFound) {
		return nil, &faults.Error{Kind: faults.NotFound, Op: "orgs.FindByID", Msg: MsgNotFound, Err: err}
	}
	return org, err
}

// FindAll returns every organization. While the store is unreachable a
// single placeholder is returned, never an empty list.
func (s *Service) FindAll(ctx context.Context) ([]Organization, error) {
	return resilience.Execute(ctx, s.registry, resilience.PolicyStoreRead,
		func(ctx context.Context) ([]Organization, error) {
			recs, err := s.store.GetAll(ctx)
			if err != nil {
				return nil, err
			}
			orgs := make([]Organization, 0, len(recs))
			for _, rec := range recs {
				orgs = append(orgs, *fromRecord(rec))
			}
			return orgs, nil
		},
		func(ctx context.Context, cause error) ([]Organization, error) {
			s.degraded(ctx, resilience.PolicyStoreRead, "*", cause).
				Warn("store unavailable, serving placeholder organization list")
			return placeholderList(), nil
		})
}

// Create validates and stores a new organization under a fresh id
func (s *Service) Create(ctx context.Context, in OrganizationInput) (*Organization, error) {
	if err := ValidateCreate(in); err != nil {
		return nil, err
	}

	// the id is fixed before the first attempt so retries upsert the same record
	org := newOrganization(s.newID(), in)
	saved, err := s.save(ctx, org, MsgWriteUnavailable)
	if err != nil {
		return nil, err
	}

	s.notifier.Publish(ctx, saved.ID, events.Created, fmt.Sprintf(descCreated, saved.ID))
	s.logger.WithField("organization_id", saved.ID).Info("organization created")
	return saved, nil
}

// Update merges the supplied fields over the stored organization
func (s *Service) Update(ctx context.Context, id string, in OrganizationInput) (*Organization, error) {
	if err := ValidateUpdate(in); err != nil {
		return nil, err
	}

	current, err := resilience.Execute(ctx, s.registry, resilience.PolicyStoreRead,
		func(ctx context.Context) (*Organization, error) {
			rec, err := s.store.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			return fromRecord(rec), nil
		},
		s.writeUnavailable(resilience.PolicyStoreRead, id, MsgWriteUnavailable))
	if err != nil {
		if faults.Is(err, faults.NotFound) {
			return nil, &faults.Error{Kind: faults.NotFound, Op: "orgs.Update", Msg: fmt.Sprintf(MsgNotFoundWithID, id), Err: err}
		}
		return nil, err
	}

	saved, err := s.save(ctx, merge(current, in), MsgWriteUnavailable)
	if err != nil {
		return nil, err
	}

	s.notifier.Publish(ctx, saved.ID, events.Updated, fmt.Sprintf(descUpdated, saved.ID))
	s.logger.WithField("organization_id", saved.ID).Info("organization updated")
	return saved, nil
}

// Delete removes the organization and returns a confirmation message
func (s *Service) Delete(ctx context.Context, id string) (string, error) {
	_, err := resilience.Execute(ctx, s.registry, resilience.PolicyStoreWrite,
		func(ctx context.Context) (struct{}, error) {
			// no pre-load: every Store returns NotFound from Delete when
			// id does not exist, which is the existence check
			return struct{}{}, s.store.Delete(ctx, id)
		},
		func(ctx context.Context, cause error) (struct{}, error) {
			_, err := s.writeUnavailable(resilience.PolicyStoreWrite, id, MsgDeleteUnavailable)(ctx, cause)
			return struct{}{}, err
		})
	if err != nil {
		if faults.Is(err, faults.NotFound) {
			return "", &faults.Error{Kind: faults.NotFound, Op: "orgs.Delete", Msg: fmt.Sprintf(MsgNotFoundWithID, id), Err: err}
		}
		return "", err
	}

	msg := fmt.Sprintf(descDeleted, id)
	s.notifier.Publish(ctx, id, events.Deleted, msg)
	s.logger.WithField("organization_id", id).Info("organization deleted")
	return msg, nil
}

// FindLicenses returns the licenses owned by the organization. The token is
// forwarded unchanged. While the licensing service is unreachable a single
// placeholder license is returned.
func (s *Service) FindLicenses(ctx context.Context, authToken, organizationID string) ([]licensing.License, error) {
	return resilience.Execute(ctx, s.registry, resilience.PolicyRemoteLicense,
		func(ctx context.Context) ([]licensing.License, error) {
			return s.licenses.FetchLicenses(ctx, authToken, organizationID)
		},
		func(ctx context.Context, cause error) ([]licensing.License, error) {
			s.degraded(ctx, resilience.PolicyRemoteLicense, organizationID, cause).
				Warn("licensing service unavailable, serving placeholder license")
			return placeholderLicenses(), nil
		})
}

func (s *Service) save(ctx context.Context, org *Organization, unavailable string) (*Organization, error) {
	return resilience.Execute(ctx, s.registry, resilience.PolicyStoreWrite,
		func(ctx context.Context) (*Organization, error) {
			rec, err := s.store.Save(ctx, toRecord(org))
			if err != nil {
				return nil, err
			}
			return fromRecord(rec), nil
		},
		s.writeUnavailable(resilience.PolicyStoreWrite, org.ID, unavailable))
}

// writeUnavailable builds a fallback that surfaces a retry-later error
func (s *Service) writeUnavailable(policy, key, msg string) resilience.Fallback[*Organization] {
	return func(ctx context.Context, cause error) (*Organization, error) {
		s.degraded(ctx, policy, key, cause).Warn("store unavailable, rejecting write")
		return nil, &faults.Error{Kind: faults.Unavailable, Op: "orgs.write", Msg: msg, Err: cause}
	}
}

// degraded returns the logger for a fallback invocation
func (s *Service) degraded(ctx context.Context, policy, key string, cause error) *observability.Logger {
	logger := s.logger
	if id := observability.GetRequestID(ctx); id != "" {
		logger = logger.WithField("request_id", id)
	}
	return logger.WithFields(map[string]interface{}{
		"policy": policy,
		"kind":   faults.KindOf(cause).String(),
		"key":    key,
	}).WithError(cause)
}
