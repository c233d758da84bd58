package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sanstorm15/CourseWork/internal/model"
)

func TestAllow(t *testing.T) {
	admin := model.User{ID: 1, Role: model.RoleAdmin, Active: true}
	teacher := model.User{ID: 2, Role: model.RoleTeacher, Active: true}
	otherTeacher := model.User{ID: 3, Role: model.RoleTeacher, Active: true}
	student := model.User{ID: 4, Role: model.RoleStudent, Active: true}

	ownGrade := ResourceRef{OwnerID: student.ID, TeacherID: teacher.ID}
	ownProfile := ResourceRef{OwnerID: student.ID}

	tests := []struct {
		name     string
		caller   model.User
		action   Action
		resource ResourceRef
		want     bool
	}{
		{"admin may view all", admin, ActionViewAll, ResourceRef{}, true},
		{"admin may edit any grade", admin, ActionGradeEdit, ownGrade, true},
		{"admin may delete", admin, ActionDelete, ResourceRef{}, true},
		{"admin may update others", admin, ActionUpdateOther, ownProfile, true},

		{"owner may view self", student, ActionViewSelf, ownProfile, true},
		{"owner may update self", student, ActionUpdateSelf, ownProfile, true},
		{"owner may not delete", student, ActionDelete, ownProfile, false},
		{"owner may not view all", student, ActionViewAll, ResourceRef{}, false},
		{"non-owner denied view self", teacher, ActionViewSelf, ownProfile, false},

		{"owning teacher may assign", teacher, ActionGradeAssign, ResourceRef{TeacherID: teacher.ID}, true},
		{"owning teacher may edit grade", teacher, ActionGradeEdit, ownGrade, true},
		{"owning teacher may delete grade", teacher, ActionGradeDelete, ownGrade, true},
		{"other teacher denied grade edit", otherTeacher, ActionGradeEdit, ownGrade, false},
		{"student denied grade edit on own grade", student, ActionGradeEdit, ownGrade, false},
		{"teacher ownership does not grant update", teacher, ActionUpdateOther, ownGrade, false},

		{"zero resource denies by default", student, ActionViewSelf, ResourceRef{}, false},
		{"inactive caller still evaluated by role", model.User{ID: 9, Role: model.RoleStudent}, ActionViewAll, ResourceRef{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Allow(tt.caller, tt.action, tt.resource))
		})
	}
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "grade_edit", ActionGradeEdit.String())
	assert.Equal(t, "view_all", ActionViewAll.String())
	assert.Equal(t, "unknown", Action(99).String())
}
