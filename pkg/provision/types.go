package provision

// Result describes the provisioned resources
type Result struct {
	TableArn    string `json:"tableArn"`
	RoleName    string `json:"roleName"`
	PolicyName  string `json:"policyName"`
	StatementID string `json:"statementId"`
	FilterName  string `json:"filterName"`
	LogGroupArn string `json:"logGroupArn"`
	// TableCreated is false when the table already existed
	TableCreated bool `json:"tableCreated"`
	// PermissionReplaced is true when a stale invoke statement was rewritten
	PermissionReplaced bool `json:"permissionReplaced"`
}

// OutputSuccess is the JSON output on success
type OutputSuccess struct {
	Data Result `json:"data"`
}

// OutputError is the JSON output on error
type OutputError struct {
	Error string `json:"error"`
}
