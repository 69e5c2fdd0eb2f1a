// Package authz decides which project operations a caller's role allows.
package authz

import (
	"errors"
	"fmt"

	"github.com/casbin/casbin/v3"
	casbinmodel "github.com/casbin/casbin/v3/model"

	"github.com/MarkoPoloResearchLab/sitebuilder/internal/model"
)

// Role is a caller's relationship to a project.
type Role string

// Action is an operation on a project.
type Action string

const (
	RoleNone   Role = ""
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"

	ActionRead    Action = "read"
	ActionEdit    Action = "edit"
	ActionPublish Action = "publish"
	ActionDelete  Action = "delete"
	ActionInvite  Action = "invite"

	resourceProject = "project"

	projectModelDefinition = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && r.act == p.act
`
)

var defaultPolicies = map[Role][]Action{
	RoleOwner:  {ActionRead, ActionEdit, ActionPublish, ActionDelete, ActionInvite},
	RoleEditor: {ActionRead, ActionEdit, ActionPublish},
	RoleViewer: {ActionRead},
}

// ErrForbidden reports an action the caller's role does not allow.
var ErrForbidden = errors.New("authz: forbidden")

// Enforcer wraps a casbin enforcer loaded with the project role policy.
type Enforcer struct {
	enforcer *casbin.Enforcer
}

// NewEnforcer builds the project enforcer from the embedded model and default policy.
func NewEnforcer() (*Enforcer, error) {
	projectModel, modelErr := casbinmodel.NewModelFromString(projectModelDefinition)
	if modelErr != nil {
		return nil, fmt.Errorf("authz: load model: %w", modelErr)
	}
	enforcer, enforcerErr := casbin.NewEnforcer(projectModel)
	if enforcerErr != nil {
		return nil, fmt.Errorf("authz: create enforcer: %w", enforcerErr)
	}
	for role, actions := range defaultPolicies {
		for _, action := range actions {
			if _, addErr := enforcer.AddPolicy(string(role), resourceProject, string(action)); addErr != nil {
				return nil, fmt.Errorf("authz: add policy %s %s: %w", role, action, addErr)
			}
		}
	}
	return &Enforcer{enforcer: enforcer}, nil
}

// Allowed reports whether role may perform action on a project.
func (enforcer *Enforcer) Allowed(role Role, action Action) (bool, error) {
	if role == RoleNone {
		return false, nil
	}
	return enforcer.enforcer.Enforce(string(role), resourceProject, string(action))
}

// Authorize returns ErrForbidden when role may not perform action.
func (enforcer *Enforcer) Authorize(role Role, action Action) error {
	allowed, enforceErr := enforcer.Allowed(role, action)
	if enforceErr != nil {
		return fmt.Errorf("authz: enforce %s %s: %w", role, action, enforceErr)
	}
	if !allowed {
		return fmt.Errorf("%w: %s cannot %s", ErrForbidden, role, action)
	}
	return nil
}

// RoleFor resolves the role of a caller from ownership and the collaborator row matching the caller's email.
func RoleFor(project model.Project, userID string, collaborator *model.Collaborator) Role {
	if userID != "" && project.OwnerID == userID {
		return RoleOwner
	}
	if collaborator == nil || collaborator.ProjectID != project.ID {
		return RoleNone
	}
	switch collaborator.Permission {
	case model.CollaboratorPermissionEdit:
		return RoleEditor
	case model.CollaboratorPermissionView:
		return RoleViewer
	default:
		return RoleNone
	}
}
