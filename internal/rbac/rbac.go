package rbac

type Role string
type Action string

const (
	RoleEndClient Role = "end_client"
	RoleCreator   Role = "creator"
	RoleAdmin     Role = "admin"
)

const (
	ActionRead           Action = "read"
	ActionWrite          Action = "write"
	ActionManageRequests Action = "manage_requests"
	ActionSubmitRequest  Action = "submit_request"
	ActionAdmin          Action = "admin"
)

// Can reports whether role may perform action. Ownership of the target row is
// checked separately by the store.
func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleCreator:
		return action == ActionRead || action == ActionWrite || action == ActionManageRequests
	case RoleEndClient:
		return action == ActionRead || action == ActionSubmitRequest
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleEndClient, RoleCreator, RoleAdmin:
		return Role(role)
	default:
		return RoleEndClient
	}
}
