package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewProjectBuildsDraft(testingT *testing.T) {
	project, err := NewProject(ProjectInput{
		ID:          "project-1",
		OwnerID:     " owner-1 ",
		Name:        "  Café  ",
		Description: "coffee shop",
		HTMLContent: "<html></html>",
	})
	require.NoError(testingT, err)
	require.Equal(testingT, "owner-1", project.OwnerID)
	require.Equal(testingT, "Café", project.Name)
	require.Equal(testingT, ProjectStatusDraft, project.Status)
	require.Equal(testingT, "<html></html>", project.HTML())
	require.False(testingT, project.IsPublished())
	require.Empty(testingT, project.SubdomainValue())
	require.Empty(testingT, project.PublishedURLValue())
}

func TestNewProjectRequiresOwnerAndName(testingT *testing.T) {
	_, err := NewProject(ProjectInput{Name: "x"})
	require.ErrorIs(testingT, err, ErrInvalidProjectOwner)

	_, err = NewProject(ProjectInput{OwnerID: "owner", Name: "   "})
	require.ErrorIs(testingT, err, ErrInvalidProjectName)
}

func TestNewProjectLeavesHTMLAbsentWhenEmpty(testingT *testing.T) {
	project, err := NewProject(ProjectInput{OwnerID: "owner", Name: "Site"})
	require.NoError(testingT, err)
	require.Nil(testingT, project.HTMLContent)
}

func TestProjectUpdateAssignments(testingT *testing.T) {
	name := " New name "
	html := "<p>hi</p>"
	assignments, err := ProjectUpdate{Name: &name, HTMLContent: &html}.Assignments()
	require.NoError(testingT, err)
	require.Equal(testingT, map[string]any{"name": "New name", "html_content": "<p>hi</p>"}, assignments)

	blank := "  "
	_, err = ProjectUpdate{Name: &blank}.Assignments()
	require.ErrorIs(testingT, err, ErrInvalidProjectName)
}
