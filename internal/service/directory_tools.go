package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Sentinel-Gate/hrgate/internal/domain/directory"
	"github.com/Sentinel-Gate/hrgate/internal/domain/tool"
)

// Tool names.
const (
	ToolGetUserData             = "get_user_data"
	ToolSearchUserByEmail       = "search_user_by_email"
	ToolPostUserData            = "post_user_data"
	ToolGetUserStatistics       = "get_user_statistics"
	ToolGetManagerHR            = "get_manager_hr"
	ToolUpdateManagerHR         = "update_manager_hr"
	ToolManageUserFields        = "manage_user_fields"
	ToolGetCompleteEmployeeData = "get_complete_employee_data"
	ToolUpdateUserOData         = "update_user_odata"
)

// ToolOptions tunes the tool set.
type ToolOptions struct {
	// PostMode is the normalizer mode used by post_user_data.
	PostMode directory.Mode
}

// argValidator validates decoded tool arguments. Field names in messages use
// the JSON spelling.
var argValidator = newArgValidator()

func newArgValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DirectoryTools binds the directory operations to MCP tool handlers.
type DirectoryTools struct {
	svc  *DirectoryService
	opts ToolOptions
}

// NewDirectoryTools creates the tool set over svc.
func NewDirectoryTools(svc *DirectoryService, opts ToolOptions) *DirectoryTools {
	return &DirectoryTools{svc: svc, opts: opts}
}

// Register adds every directory tool to reg.
func (d *DirectoryTools) Register(reg *tool.Registry) error {
	readOnly := func(title string) *tool.Annotations {
		return &tool.Annotations{Title: title, ReadOnlyHint: true, IdempotentHint: true, OpenWorldHint: true}
	}
	write := func(title string) *tool.Annotations {
		return &tool.Annotations{Title: title, IdempotentHint: true, OpenWorldHint: true}
	}

	entries := []struct {
		t tool.Tool
		h tool.Handler
	}{
		{tool.Tool{
			Name:        ToolGetUserData,
			Description: "Get a user's record by user ID, employee ID or email. Returns fields under their upper-case names (FIRSTNAME, EMAIL, ...); pass fields to restrict the result.",
			InputSchema: getUserDataSchema,
			Annotations: readOnly("Get user data"),
		}, d.getUserData},
		{tool.Tool{
			Name:        ToolSearchUserByEmail,
			Description: "Find users whose email address matches exactly.",
			InputSchema: searchByEmailSchema,
			Annotations: readOnly("Search user by email"),
		}, d.searchUserByEmail},
		{tool.Tool{
			Name:        ToolPostUserData,
			Description: "Update a user's fields. Keys are field names in any casing; STATUS and USERNAME are kept from the current record when not given.",
			InputSchema: postUserDataSchema,
			Annotations: write("Update user data"),
		}, d.postUserData},
		{tool.Tool{
			Name:        ToolGetUserStatistics,
			Description: "Count users by status, gender, department and location, with optional per-grouping filters.",
			InputSchema: statisticsSchema,
			Annotations: readOnly("User statistics"),
		}, d.getUserStatistics},
		{tool.Tool{
			Name:        ToolGetManagerHR,
			Description: "Get a user's manager and HR contact.",
			InputSchema: getManagerHRSchema,
			Annotations: readOnly("Get manager and HR"),
		}, d.getManagerHR},
		{tool.Tool{
			Name:        ToolUpdateManagerHR,
			Description: "Assign or unassign a user's manager and/or HR contact. Targets may be any user token; NO_MANAGER, NO_HR or an empty string unassigns.",
			InputSchema: updateManagerHRSchema,
			Annotations: write("Update manager and HR"),
		}, d.updateManagerHR},
		{tool.Tool{
			Name:        ToolManageUserFields,
			Description: "Get or update a user's fields using only the known field names. Unknown names are rejected on update.",
			InputSchema: manageUserFieldsSchema,
			Annotations: write("Manage user fields"),
		}, d.manageUserFields},
		{tool.Tool{
			Name:        ToolGetCompleteEmployeeData,
			Description: "Read a user's complete record with navigation properties expanded, as JSON or raw XML.",
			InputSchema: completeEmployeeDataSchema,
			Annotations: readOnly("Complete employee data"),
		}, d.getCompleteEmployeeData},
		{tool.Tool{
			Name:        ToolUpdateUserOData,
			Description: "Update a user with directory property names (firstName, timeZone, ...). additionalFields are sent as given.",
			InputSchema: updateUserODataSchema,
			Annotations: write("Update user (OData names)"),
		}, d.updateUserOData},
	}

	for _, e := range entries {
		if err := reg.Register(e.t, e.h); err != nil {
			return err
		}
	}
	return nil
}

type getUserDataArgs struct {
	UserID string   `json:"userId" validate:"required"`
	Fields []string `json:"fields"`
}

func (d *DirectoryTools) getUserData(ctx context.Context, raw json.RawMessage) (*tool.CallResult, error) {
	var args getUserDataArgs
	if err := decodeArgs(ToolGetUserData, raw, &args); err != nil {
		return nil, err
	}
	view, err := d.svc.GetUser(ctx, args.UserID, args.Fields)
	if err != nil {
		return failure("Failed to get user data", err)
	}
	return tool.NewJSONResult(view.Fields)
}

type searchByEmailArgs struct {
	Email string `json:"email" validate:"required"`
}

func (d *DirectoryTools) searchUserByEmail(ctx context.Context, raw json.RawMessage) (*tool.CallResult, error) {
	var args searchByEmailArgs
	if err := decodeArgs(ToolSearchUserByEmail, raw, &args); err != nil {
		return nil, err
	}
	results, err := d.svc.SearchByEmail(ctx, args.Email)
	if err != nil {
		return failure("Failed to search by email", err)
	}
	return tool.NewJSONResult(map[string]any{
		"query":   map[string]string{"email": args.Email},
		"count":   len(results),
		"results": results,
	})
}

type postUserDataArgs struct {
	UserID string         `json:"userId" validate:"required"`
	Data   map[string]any `json:"data" validate:"required,min=1"`
}

func (d *DirectoryTools) postUserData(ctx context.Context, raw json.RawMessage) (*tool.CallResult, error) {
	var args postUserDataArgs
	if err := decodeArgs(ToolPostUserData, raw, &args); err != nil {
		return nil, err
	}
	res, err := d.svc.Update(ctx, args.UserID, directory.FieldMap(args.Data), d.opts.PostMode)
	if err != nil {
		return failure("Failed to update user", err)
	}
	return tool.NewJSONResult(map[string]any{
		"success":       true,
		"message":       fmt.Sprintf("User %s updated successfully", args.UserID),
		"userId":        res.Key,
		"updatedFields": sortedKeys(args.Data),
		"result":        res.Result,
	})
}

type statisticsArgs struct {
	Filters map[string]any `json:"filters"`
}

func (d *DirectoryTools) getUserStatistics(ctx context.Context, raw json.RawMessage) (*tool.CallResult, error) {
	var args statisticsArgs
	if err := decodeArgs(ToolGetUserStatistics, raw, &args); err != nil {
		return nil, err
	}
	filters := make(map[string]string, len(args.Filters))
	for k, v := range args.Filters {
		if v == nil {
			continue
		}
		filters[k] = fmt.Sprint(v)
	}
	stats, err := d.svc.Statistics(ctx, filters)
	if err != nil {
		return failure("Failed to get statistics", err)
	}
	return tool.NewJSONResult(stats.AsMap())
}

type getManagerHRArgs struct {
	UserID     string `json:"userId" validate:"required"`
	GetManager *bool  `json:"getManager"`
	GetHR      *bool  `json:"getHR"`
}

func (d *DirectoryTools) getManagerHR(ctx context.Context, raw json.RawMessage) (*tool.CallResult, error) {
	var args getManagerHRArgs
	if err := decodeArgs(ToolGetManagerHR, raw, &args); err != nil {
		return nil, err
	}
	withManager := args.GetManager == nil || *args.GetManager
	withHR := args.GetHR == nil || *args.GetHR

	rel, err := d.svc.ManagerHR(ctx, args.UserID, withManager, withHR)
	if err != nil {
		return failure("Failed to get manager/HR", err)
	}
	out := map[string]any{
		"userId":          rel.Key,
		"requestedUserId": args.UserID,
	}
	if withManager {
		out["manager"] = rel.Manager
	}
	if withHR {
		out["hr"] = rel.HR
	}
	return tool.NewJSONResult(out)
}

type updateManagerHRArgs struct {
	UserID    string  `json:"userId" validate:"required"`
	ManagerID *string `json:"managerId" validate:"required_without=HRID"`
	HRID      *string `json:"hrId"`
}

func (d *DirectoryTools) updateManagerHR(ctx context.Context, raw json.RawMessage) (*tool.CallResult, error) {
	var args updateManagerHRArgs
	if err := decodeArgs(ToolUpdateManagerHR, raw, &args); err != nil {
		return nil, err
	}
	res, err := d.svc.UpdateRelationships(ctx, args.UserID, args.ManagerID, args.HRID)
	if err != nil {
		return failure("Failed to update manager/HR", err)
	}

	out := map[string]any{
		"success":         true,
		"message":         fmt.Sprintf("Manager/HR updated for user %s", args.UserID),
		"userId":          res.Key,
		"requestedUserId": args.UserID,
		"result":          res.Result,
	}
	if link, ok := res.Payload["manager"].(directory.LinkReference); ok {
		out["manager"] = link.Metadata.URI
	}
	if link, ok := res.Payload["hr"].(directory.LinkReference); ok {
		out["hr"] = link.Metadata.URI
	}
	return tool.NewJSONResult(out)
}

type manageUserFieldsArgs struct {
	Action string          `json:"action" validate:"required,oneof=get update"`
	UserID string          `json:"userId" validate:"required"`
	Fields json.RawMessage `json:"fields"`
}

func (d *DirectoryTools) manageUserFields(ctx context.Context, raw json.RawMessage) (*tool.CallResult, error) {
	var args manageUserFieldsArgs
	if err := decodeArgs(ToolManageUserFields, raw, &args); err != nil {
		return nil, err
	}

	if args.Action == "get" {
		names, err := fieldNames(args.Fields)
		if err != nil {
			return nil, &tool.ArgumentError{Tool: ToolManageUserFields, Err: err}
		}
		view, err := d.svc.GetUser(ctx, args.UserID, names)
		if err != nil {
			return failure("Failed to manage user fields", err)
		}
		return tool.NewJSONResult(map[string]any{
			"userId":          view.Key,
			"requestedUserId": args.UserID,
			"fields":          view.Fields,
			"availableFields": directory.FieldNames(),
		})
	}

	var changes map[string]any
	if err := json.Unmarshal(args.Fields, &changes); err != nil || len(changes) == 0 {
		return nil, &tool.ArgumentError{Tool: ToolManageUserFields, Err: errors.New("fields object is required for update action")}
	}
	res, err := d.svc.Update(ctx, args.UserID, directory.FieldMap(changes), directory.ModeStrict)
	if err != nil {
		return failure("Failed to manage user fields", err)
	}
	return tool.NewJSONResult(map[string]any{
		"success":       true,
		"message":       fmt.Sprintf("User %s fields updated successfully", args.UserID),
		"userId":        res.Key,
		"updatedFields": sortedKeys(changes),
		"result":        res.Result,
	})
}

type completeEmployeeDataArgs struct {
	UserID           string   `json:"userId" validate:"required"`
	ExpandProperties []string `json:"expandProperties" validate:"dive,required"`
	Format           string   `json:"format" validate:"omitempty,oneof=json xml"`
}

func (d *DirectoryTools) getCompleteEmployeeData(ctx context.Context, raw json.RawMessage) (*tool.CallResult, error) {
	var args completeEmployeeDataArgs
	if err := decodeArgs(ToolGetCompleteEmployeeData, raw, &args); err != nil {
		return nil, err
	}
	rec, err := d.svc.CompleteRecord(ctx, args.UserID, args.ExpandProperties, args.Format)
	if err != nil {
		return failure("Failed to get complete employee data", err)
	}
	if rec.Format == FormatXML {
		return tool.NewTextResult(rec.Raw), nil
	}
	return tool.NewJSONResult(map[string]any{
		"userId":             rec.Key,
		"requestedUserId":    args.UserID,
		"completeData":       rec.Data,
		"format":             rec.Format,
		"expandedProperties": rec.Expanded,
	})
}

type updateUserODataArgs struct {
	UserID           string          `json:"userId" validate:"required"`
	Username         *string         `json:"username"`
	Status           *string         `json:"status"`
	FirstName        *string         `json:"firstName"`
	LastName         *string         `json:"lastName"`
	Gender           *string         `json:"gender"`
	Email            *string         `json:"email"`
	Department       *string         `json:"department"`
	TimeZone         *string         `json:"timeZone"`
	ManagerID        json.RawMessage `json:"managerId"`
	HRID             json.RawMessage `json:"hrId"`
	AdditionalFields map[string]any  `json:"additionalFields"`
}

// changes translates the named properties back to human field names.
// managerId and hrId are included when present, with null meaning unassign.
func (a updateUserODataArgs) changes() (directory.FieldMap, error) {
	changes := directory.FieldMap{}
	for k, v := range a.AdditionalFields {
		changes[k] = v
	}

	named := map[string]*string{
		"username":   a.Username,
		"status":     a.Status,
		"firstName":  a.FirstName,
		"lastName":   a.LastName,
		"gender":     a.Gender,
		"email":      a.Email,
		"department": a.Department,
		"timeZone":   a.TimeZone,
	}
	for property, value := range named {
		if value == nil {
			continue
		}
		f, _ := directory.LookupProperty(property)
		changes[f.Name] = *value
	}

	links := []struct {
		field string
		raw   json.RawMessage
	}{
		{directory.FieldManager, a.ManagerID},
		{directory.FieldHR, a.HRID},
	}
	for _, l := range links {
		if len(l.raw) == 0 {
			continue
		}
		var target *string
		if err := json.Unmarshal(l.raw, &target); err != nil {
			return nil, fmt.Errorf("%s must be a string or null", strings.ToLower(l.field)+"Id")
		}
		if target == nil {
			changes[l.field] = nil
		} else {
			changes[l.field] = *target
		}
	}
	return changes, nil
}

func (d *DirectoryTools) updateUserOData(ctx context.Context, raw json.RawMessage) (*tool.CallResult, error) {
	var args updateUserODataArgs
	if err := decodeArgs(ToolUpdateUserOData, raw, &args); err != nil {
		return nil, err
	}
	changes, err := args.changes()
	if err != nil {
		return nil, &tool.ArgumentError{Tool: ToolUpdateUserOData, Err: err}
	}
	res, err := d.svc.Update(ctx, args.UserID, changes, directory.ModePermissive)
	if err != nil {
		return failure("Failed to update user", err)
	}
	return tool.NewJSONResult(map[string]any{
		"success": true,
		"message": fmt.Sprintf("User %s updated successfully", res.Key),
		"userId":  res.Key,
		"payload": res.Payload,
		"result":  res.Result,
	})
}

// decodeArgs unmarshals raw into v and validates it. Failures are returned
// as *tool.ArgumentError.
func decodeArgs(toolName string, raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &tool.ArgumentError{Tool: toolName, Err: fmt.Errorf("malformed arguments: %w", err)}
	}
	if err := argValidator.Struct(v); err != nil {
		return &tool.ArgumentError{Tool: toolName, Err: formatArgErrors(err)}
	}
	return nil
}

func formatArgErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := e.Field()
		switch e.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "required_without":
			msgs = append(msgs, fmt.Sprintf("at least one of %s or %s must be provided", field, jsonName(e.Param())))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, e.Param()))
		case "min":
			msgs = append(msgs, field+" must not be empty")
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed validation: %s", field, e.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// jsonName maps the Go field names used in cross-field tags to their JSON
// spelling.
func jsonName(goName string) string {
	switch goName {
	case "HRID":
		return "hrId"
	case "ManagerID":
		return "managerId"
	default:
		return goName
	}
}

// failure renders a directory error as an isError tool result. Errors that
// are not directory errors are returned for the router to report.
func failure(prefix string, err error) (*tool.CallResult, error) {
	kind := directory.ErrorKind(err)
	if kind == "internal" {
		return nil, err
	}
	detail := map[string]any{
		"kind":    kind,
		"message": err.Error(),
	}

	var (
		notFound  *directory.NotFoundError
		ambiguous *directory.AmbiguousMatchError
		unknown   *directory.UnknownFieldError
		missing   *directory.MissingRequiredFieldError
		invalid   *directory.InvalidFieldValueError
		rejected  *directory.RemoteRejectedError
	)
	switch {
	case errors.As(err, &notFound):
		detail["token"] = notFound.Token
	case errors.As(err, &ambiguous):
		detail["token"] = ambiguous.Token
		detail["strategy"] = ambiguous.Strategy
		detail["candidates"] = ambiguous.Candidates
	case errors.As(err, &unknown):
		detail["fields"] = unknown.Fields
	case errors.As(err, &missing):
		detail["field"] = missing.Field
	case errors.As(err, &invalid):
		detail["field"] = invalid.Field
	case errors.As(err, &rejected):
		detail["status"] = rejected.Status
		detail["body"] = rejected.Body
	}

	return tool.NewErrorResult(prefix+": "+err.Error(), map[string]any{"error": detail}), nil
}

// fieldNames accepts either a list of names or an object whose keys are names.
func fieldNames(raw json.RawMessage) ([]string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(trimmed, &list); err == nil {
		return list, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, errors.New("fields must be an array of names or an object")
	}
	return sortedKeys(obj), nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
