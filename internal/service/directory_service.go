package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sentinel-Gate/hrgate/internal/ctxkey"
	"github.com/Sentinel-Gate/hrgate/internal/domain/directory"
)

// DefaultExpansions are the navigation properties expanded by
// CompleteRecord when the caller names none.
var DefaultExpansions = []string{
	directory.PersonKeyNav, "manager", "hr", "empInfo", "secondManager", "matrixManager", "customManager",
}

// Response formats for CompleteRecord.
const (
	FormatJSON = "json"
	FormatXML  = "xml"
)

// RawReader returns a read response body without decoding it. The OData
// client implements it; it is needed only for XML reads.
type RawReader interface {
	ReadRaw(ctx context.Context, q directory.Query, format string) ([]byte, error)
}

// UserSummary is the short form of a person used in search results and
// relationship lookups.
type UserSummary struct {
	UserID    string `json:"userId"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// UserView is a person rendered in the human field vocabulary.
type UserView struct {
	directory.Resolution
	Fields map[string]any
}

// UpdateResult describes a completed upsert.
type UpdateResult struct {
	directory.Resolution
	Payload directory.Payload
	Result  json.RawMessage
}

// Relationships holds a person's manager and HR contact. A nil entry means
// the directory returned no linked person.
type Relationships struct {
	directory.Resolution
	Manager *UserSummary
	HR      *UserSummary
}

// CompleteRecord is a full read with navigation properties expanded. Data
// holds the JSON entity for FormatJSON; Raw holds the body for FormatXML.
type CompleteRecord struct {
	directory.Resolution
	Format   string
	Expanded []string
	Data     json.RawMessage
	Raw      string
}

// DirectoryService composes the resolver, the snapshot read, the normalizer
// and the upsert into the operations the tools expose. It holds no
// per-call state.
type DirectoryService struct {
	dir        directory.Directory
	raw        RawReader
	resolver   *directory.Resolver
	strict     *directory.Normalizer
	permissive *directory.Normalizer
	cfg        directory.Config
	tracer     trace.Tracer
	logger     *slog.Logger
}

// NewDirectoryService creates a DirectoryService over dir. When dir also
// implements RawReader, XML reads are available.
func NewDirectoryService(dir directory.Directory, cfg directory.Config, logger *slog.Logger) *DirectoryService {
	cfg = cfg.WithDefaults()
	raw, _ := dir.(RawReader)
	return &DirectoryService{
		dir:        dir,
		raw:        raw,
		resolver:   directory.NewResolver(dir, cfg, logger),
		strict:     directory.NewNormalizer(directory.ModeStrict, cfg, logger),
		permissive: directory.NewNormalizer(directory.ModePermissive, cfg, logger),
		cfg:        cfg,
		tracer:     otel.Tracer("github.com/Sentinel-Gate/hrgate/internal/service"),
		logger:     logger,
	}
}

// Resolve maps token to the person's canonical key.
func (s *DirectoryService) Resolve(ctx context.Context, token string) (directory.Resolution, error) {
	ctx, span := s.tracer.Start(ctx, "directory.resolve")
	defer span.End()

	res, err := s.resolver.Resolve(ctx, token)
	if err != nil {
		endWithError(span, err)
		return directory.Resolution{}, err
	}
	span.SetAttributes(attribute.String("directory.strategy", res.Strategy))
	return res, nil
}

// GetUser resolves token and returns the person in the human vocabulary,
// restricted to fields when given.
func (s *DirectoryService) GetUser(ctx context.Context, token string, fields []string) (*UserView, error) {
	res, err := s.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	env, err := s.dir.Read(ctx, directory.Query{
		EntitySet: s.cfg.PersonEntity,
		Key:       res.Key.String(),
		Expand:    []string{directory.PersonKeyNav},
	})
	if err != nil {
		return nil, err
	}
	entity, ok := env.First()
	if !ok {
		return nil, &directory.NotFoundError{Token: token}
	}
	return &UserView{Resolution: res, Fields: directory.ProjectFields(entity, fields)}, nil
}

// SearchByEmail lists the people whose email equals email exactly.
func (s *DirectoryService) SearchByEmail(ctx context.Context, email string) ([]UserSummary, error) {
	env, err := s.dir.Read(ctx, directory.Query{
		EntitySet: s.cfg.PersonEntity,
		Filter:    directory.Eq("email", email),
		Select:    []string{"userId", "firstName", "lastName", "email"},
	})
	if err != nil {
		return nil, err
	}
	results := make([]UserSummary, 0, len(env.Results))
	for _, e := range env.Results {
		results = append(results, summaryOf(e))
	}
	return results, nil
}

// Snapshot reads the required-field values currently stored for key. A
// rejected read yields an empty snapshot so explicit values can still
// satisfy the required fields; transport failures are returned.
func (s *DirectoryService) Snapshot(ctx context.Context, key directory.CanonicalKey) (directory.Snapshot, error) {
	env, err := s.dir.Read(ctx, directory.Query{
		EntitySet: s.cfg.PersonEntity,
		Key:       key.String(),
		Select:    directory.RequiredProperties(),
	})
	if errors.Is(err, directory.ErrRemoteRejected) {
		ctxkey.Logger(ctx, s.logger).Warn("required field snapshot unavailable", "key", key, "error", err)
		return directory.Snapshot{}, nil
	}
	if err != nil {
		return nil, err
	}
	entity, ok := env.First()
	if !ok {
		return directory.Snapshot{}, nil
	}
	return directory.SnapshotOf(entity), nil
}

// Update resolves token, reads the snapshot, normalizes changes in mode and
// writes the payload. Nothing is written unless normalization succeeds.
func (s *DirectoryService) Update(ctx context.Context, token string, changes directory.FieldMap, mode directory.Mode) (*UpdateResult, error) {
	res, err := s.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.write(ctx, res, changes, mode)
}

// UpdateRelationships sets the manager and/or HR link of the person behind
// token. Nil targets are left untouched. Target tokens other than the
// unassign sentinel are resolved like any user token.
func (s *DirectoryService) UpdateRelationships(ctx context.Context, token string, managerID, hrID *string) (*UpdateResult, error) {
	if managerID == nil && hrID == nil {
		return nil, errors.New("at least one of managerId or hrId must be provided")
	}
	res, err := s.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	changes := directory.FieldMap{}
	targets := []struct {
		field string
		value *string
	}{
		{directory.FieldManager, managerID},
		{directory.FieldHR, hrID},
	}
	for _, t := range targets {
		if t.value == nil {
			continue
		}
		value, err := s.resolveLinkTarget(ctx, t.field, *t.value)
		if err != nil {
			return nil, err
		}
		changes[t.field] = value
	}
	return s.write(ctx, res, changes, directory.ModeStrict)
}

func (s *DirectoryService) resolveLinkTarget(ctx context.Context, field, target string) (string, error) {
	f, _ := directory.LookupField(field)
	key, err := directory.LinkTarget(f, target)
	if err != nil || key == f.Sentinel {
		return key, err
	}
	res, err := s.Resolve(ctx, key)
	if err != nil {
		return "", err
	}
	return res.Key.String(), nil
}

func (s *DirectoryService) write(ctx context.Context, res directory.Resolution, changes directory.FieldMap, mode directory.Mode) (*UpdateResult, error) {
	ctx, span := s.tracer.Start(ctx, "directory.update",
		trace.WithAttributes(
			attribute.String("directory.strategy", res.Strategy),
			attribute.String("directory.mode", mode.String()),
		))
	defer span.End()

	snapshot, err := s.Snapshot(ctx, res.Key)
	if err != nil {
		endWithError(span, err)
		return nil, err
	}

	normalizer := s.permissive
	if mode == directory.ModeStrict {
		normalizer = s.strict
	}
	payload, err := normalizer.Normalize(res.Key, snapshot, changes)
	if err != nil {
		endWithError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("directory.payload_properties", len(payload.Properties())))

	result, err := s.dir.Upsert(ctx, payload)
	if err != nil {
		endWithError(span, err)
		return nil, err
	}

	ctxkey.Logger(ctx, s.logger).Info("user updated",
		"key", res.Key,
		"strategy", res.Strategy,
		"properties", payload.Properties(),
	)
	return &UpdateResult{Resolution: res, Payload: payload, Result: result}, nil
}

// Statistics aggregates the whole person population and applies the
// per-grouping filters.
func (s *DirectoryService) Statistics(ctx context.Context, filters map[string]string) (*directory.Statistics, error) {
	env, err := s.dir.Read(ctx, directory.Query{
		EntitySet:   s.cfg.PersonEntity,
		Select:      []string{"userId", "status", "gender", "department", "location"},
		InlineCount: true,
	})
	if err != nil {
		return nil, err
	}
	stats := directory.ComputeStatistics(env)
	stats.ApplyFilters(filters)
	return stats, nil
}

// ManagerHR resolves token and reads its manager and HR links.
func (s *DirectoryService) ManagerHR(ctx context.Context, token string, withManager, withHR bool) (*Relationships, error) {
	res, err := s.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	q := directory.Query{
		EntitySet: s.cfg.PersonEntity,
		Key:       res.Key.String(),
		Select:    []string{"userId"},
	}
	var navs []string
	if withManager {
		navs = append(navs, "manager")
	}
	if withHR {
		navs = append(navs, "hr")
	}
	for _, nav := range navs {
		q.Expand = append(q.Expand, nav)
		for _, p := range []string{"userId", "username", "firstName", "lastName", "email"} {
			q.Select = append(q.Select, nav+"/"+p)
		}
	}

	env, err := s.dir.Read(ctx, q)
	if err != nil {
		return nil, err
	}
	entity, ok := env.First()
	if !ok {
		return nil, &directory.NotFoundError{Token: token}
	}

	rel := &Relationships{Resolution: res}
	if withManager {
		rel.Manager = linkedSummary(entity, "manager")
	}
	if withHR {
		rel.HR = linkedSummary(entity, "hr")
	}
	return rel, nil
}

// CompleteRecord resolves token and reads the full record with expand
// (DefaultExpansions when empty) in the given format.
func (s *DirectoryService) CompleteRecord(ctx context.Context, token string, expand []string, format string) (*CompleteRecord, error) {
	if format == "" {
		format = FormatJSON
	}
	if len(expand) == 0 {
		expand = DefaultExpansions
	}
	if s.raw == nil {
		return nil, fmt.Errorf("directory client does not support raw reads")
	}

	res, err := s.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	body, err := s.raw.ReadRaw(ctx, directory.Query{
		EntitySet: s.cfg.PersonEntity,
		Key:       res.Key.String(),
		Expand:    expand,
	}, format)
	if err != nil {
		return nil, err
	}

	rec := &CompleteRecord{Resolution: res, Format: format, Expanded: expand}
	if format == FormatXML {
		rec.Raw = string(body)
		return rec, nil
	}

	var envelope struct {
		D json.RawMessage `json:"d"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode complete record: %w", err)
	}
	rec.Data = envelope.D
	if len(rec.Data) == 0 {
		rec.Data = body
	}
	return rec, nil
}

func summaryOf(e directory.Entity) UserSummary {
	pick := func(property, upper string) string {
		if v := e.String(property); v != "" {
			return v
		}
		return e.String(upper)
	}
	return UserSummary{
		UserID:    pick("userId", "USERID"),
		Username:  pick("username", "USERNAME"),
		FirstName: pick("firstName", "FIRSTNAME"),
		LastName:  pick("lastName", "LASTNAME"),
		Email:     pick("email", "EMAIL"),
	}
}

func linkedSummary(e directory.Entity, nav string) *UserSummary {
	linked, ok := e.Nested(nav)
	if !ok {
		return nil
	}
	summary := summaryOf(linked)
	if summary.UserID == "" {
		return nil
	}
	return &summary
}

func endWithError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, directory.ErrorKind(err))
}
