package rbac

type Role string
type Action string

const (
	RoleParticipant Role = "participant"
	RoleFacilitator Role = "facilitator"
)

const (
	ActionView       Action = "view"
	ActionContribute Action = "contribute"
	ActionManage     Action = "manage"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleFacilitator:
		return true
	case RoleParticipant:
		return action == ActionView || action == ActionContribute
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleParticipant, RoleFacilitator:
		return Role(role)
	default:
		return RoleParticipant
	}
}
