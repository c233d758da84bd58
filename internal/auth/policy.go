package auth

import "github.com/Sanstorm15/CourseWork/internal/model"

// Action is the closed set of operations the policy rules on.
type Action int

const (
	ActionViewAll Action = iota
	ActionViewSelf
	ActionViewOther
	ActionCreate
	ActionUpdateSelf
	ActionUpdateOther
	ActionDelete
	ActionGradeAssign
	ActionGradeEdit
	ActionGradeDelete
)

func (a Action) String() string {
	switch a {
	case ActionViewAll:
		return "view_all"
	case ActionViewSelf:
		return "view_self"
	case ActionViewOther:
		return "view_other"
	case ActionCreate:
		return "create"
	case ActionUpdateSelf:
		return "update_self"
	case ActionUpdateOther:
		return "update_other"
	case ActionDelete:
		return "delete"
	case ActionGradeAssign:
		return "grade_assign"
	case ActionGradeEdit:
		return "grade_edit"
	case ActionGradeDelete:
		return "grade_delete"
	default:
		return "unknown"
	}
}

// ResourceRef carries the ownership facts of the target resource. OwnerID is
// the identity that "owns" the record (a profile's user, a grade's student);
// TeacherID is set on grade resources to the teacher who assigned them.
type ResourceRef struct {
	OwnerID   int64
	TeacherID int64
}

// Allow decides whether caller may perform action on resource. Ordered rules,
// first match wins, default deny. Pure: no store access, no clock.
func Allow(caller model.User, action Action, resource ResourceRef) bool {
	// Rule 1: administrators may do anything.
	if caller.IsAdmin() {
		return true
	}

	// Rule 2: owners may view and update their own records.
	if resource.OwnerID != 0 && caller.ID == resource.OwnerID {
		if action == ActionViewSelf || action == ActionUpdateSelf {
			return true
		}
	}

	// Rule 3: teachers control the grades they assigned.
	if caller.IsTeacher() && resource.TeacherID != 0 && caller.ID == resource.TeacherID {
		switch action {
		case ActionGradeAssign, ActionGradeEdit, ActionGradeDelete:
			return true
		}
	}

	return false
}
