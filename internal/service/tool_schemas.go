package service

import "encoding/json"

// Input schemas for the directory tools, as advertised in tools/list.
var (
	getUserDataSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "userId": {"type": "string", "description": "User ID, employee ID or email address"},
    "fields": {"type": "array", "items": {"type": "string"}, "description": "Field names to return (e.g. FIRSTNAME, EMAIL); all fields when omitted"}
  },
  "required": ["userId"]
}`)

	searchByEmailSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "email": {"type": "string", "description": "Exact email address to search for"}
  },
  "required": ["email"]
}`)

	postUserDataSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "userId": {"type": "string", "description": "User ID, employee ID or email address"},
    "data": {"type": "object", "description": "Fields to update keyed by field name in any casing (e.g. FIRSTNAME, department). MANAGER and HR take a user ID or NO_MANAGER / NO_HR"}
  },
  "required": ["userId", "data"]
}`)

	statisticsSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "filters": {"type": "object", "description": "Grouping to value filters, e.g. {\"department\": \"Sales\"}. Supported groupings: status, gender, department, location"}
  }
}`)

	getManagerHRSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "userId": {"type": "string", "description": "User ID, employee ID or email address"},
    "getManager": {"type": "boolean", "default": true},
    "getHR": {"type": "boolean", "default": true}
  },
  "required": ["userId"]
}`)

	updateManagerHRSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "userId": {"type": "string", "description": "User ID, employee ID or email address"},
    "managerId": {"type": "string", "description": "New manager (any user token) or NO_MANAGER; empty string unassigns"},
    "hrId": {"type": "string", "description": "New HR contact (any user token) or NO_HR; empty string unassigns"}
  },
  "required": ["userId"]
}`)

	manageUserFieldsSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "action": {"type": "string", "enum": ["get", "update"]},
    "userId": {"type": "string", "description": "User ID, employee ID or email address"},
    "fields": {"description": "For get: field names (array or object keys) to return. For update: object of field name to value; only known fields are accepted"}
  },
  "required": ["action", "userId"]
}`)

	completeEmployeeDataSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "userId": {"type": "string", "description": "User ID, employee ID or email address"},
    "expandProperties": {"type": "array", "items": {"type": "string"}, "description": "Navigation properties to expand; defaults to personKeyNav, manager, hr, empInfo, secondManager, matrixManager, customManager"},
    "format": {"type": "string", "enum": ["json", "xml"], "default": "json"}
  },
  "required": ["userId"]
}`)

	updateUserODataSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "userId": {"type": "string", "description": "User ID, employee ID or email address"},
    "username": {"type": "string"},
    "status": {"type": "string"},
    "firstName": {"type": "string"},
    "lastName": {"type": "string"},
    "gender": {"type": "string"},
    "email": {"type": "string"},
    "department": {"type": "string"},
    "timeZone": {"type": "string"},
    "managerId": {"type": ["string", "null"], "description": "Manager user ID; null or empty string unassigns"},
    "hrId": {"type": ["string", "null"], "description": "HR user ID; null or empty string unassigns"},
    "additionalFields": {"type": "object", "description": "Extra properties sent as given; known field names are translated"}
  },
  "required": ["userId"]
}`)
)
