package publish_test

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/sitebuilder/internal/auth"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/authz"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/model"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/project"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/publish"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/sitecache"
	"github.com/MarkoPoloResearchLab/sitebuilder/internal/testutil"
)

const testPublicBaseURL = "https://sites.example.com/"

var (
	testOwner    = auth.Caller{UserID: "owner-1", Email: "owner@example.com"}
	testViewer   = auth.Caller{UserID: "viewer-1", Email: "viewer@example.com"}
	testEditor   = auth.Caller{UserID: "editor-1", Email: "editor@example.com"}
	testStranger = auth.Caller{UserID: "stranger-1", Email: "stranger@example.com"}
	fixedNow     = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
)

type recordingCache struct {
	sitecache.Noop
	mutex       sync.Mutex
	invalidated []string
}

func (cache *recordingCache) Invalidate(_ context.Context, keys ...string) error {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	cache.invalidated = append(cache.invalidated, keys...)
	return nil
}

type publishHarness struct {
	database  *gorm.DB
	service   *project.Service
	publisher *publish.Publisher
	cache     *recordingCache
}

func buildPublishHarness(testingT *testing.T, policy publish.SubdomainPolicy) publishHarness {
	testingT.Helper()
	database := testutil.OpenMigratedDatabase(testingT)
	enforcer, err := authz.NewEnforcer()
	require.NoError(testingT, err)
	service := project.NewService(database, enforcer, zap.NewNop())
	cache := &recordingCache{}
	publisher, err := publish.NewPublisher(service, cache, zap.NewNop(), publish.Config{
		PublicBaseURL:   testPublicBaseURL,
		SubdomainPolicy: policy,
		Now:             func() time.Time { return fixedNow },
	})
	require.NoError(testingT, err)
	return publishHarness{database: database, service: service, publisher: publisher, cache: cache}
}

func (harness publishHarness) createProject(testingT *testing.T, name string) model.Project {
	testingT.Helper()
	created, err := harness.service.CreateProject(context.Background(), testOwner, model.ProjectInput{Name: name})
	require.NoError(testingT, err)
	return created
}

func (harness publishHarness) reload(testingT *testing.T, projectID string) model.Project {
	testingT.Helper()
	loaded, err := harness.service.Repository().FindByID(context.Background(), projectID)
	require.NoError(testingT, err)
	return loaded
}

func TestPublishKeepsRequestedSubdomain(testingT *testing.T) {
	harness := buildPublishHarness(testingT, publish.SubdomainPolicyRetain)
	created := harness.createProject(testingT, "Bakery")

	result, err := harness.publisher.Publish(context.Background(), testOwner, publish.Request{
		ProjectID:   created.ID,
		HTMLContent: "<p>bread</p>",
		Subdomain:   "bakery",
	})
	require.NoError(testingT, err)
	require.Equal(testingT, "bakery", result.Subdomain)
	require.Equal(testingT, "https://sites.example.com/serve-site?subdomain=bakery", result.PublishedURL)
	require.NotEmpty(testingT, result.Message)

	stored := harness.reload(testingT, created.ID)
	require.Equal(testingT, model.ProjectStatusPublished, stored.Status)
	require.Equal(testingT, "bakery", stored.SubdomainValue())
	require.Equal(testingT, result.PublishedURL, stored.PublishedURLValue())
	require.Equal(testingT, "<p>bread</p>", stored.HTML())
	require.Contains(testingT, harness.cache.invalidated, "bakery")
	require.Contains(testingT, harness.cache.invalidated, created.ID)
}

func TestPublishGeneratesSubdomainFromName(testingT *testing.T) {
	harness := buildPublishHarness(testingT, publish.SubdomainPolicyRetain)
	created := harness.createProject(testingT, "My Café")

	first, err := harness.publisher.Publish(context.Background(), testOwner, publish.Request{ProjectID: created.ID, HTMLContent: "<p>v1</p>"})
	require.NoError(testingT, err)
	require.Regexp(testingT, regexp.MustCompile(`^my-caf(e|é)?-[a-z0-9]{8}$`), first.Subdomain)
	require.Contains(testingT, first.PublishedURL, first.Subdomain)

	second, err := harness.publisher.Publish(context.Background(), testOwner, publish.Request{ProjectID: created.ID, HTMLContent: "<p>v1</p>"})
	require.NoError(testingT, err)
	require.Equal(testingT, first.PublishedURL, second.PublishedURL)
}

func TestPublishSuffixesSubdomainTakenByAnotherProject(testingT *testing.T) {
	harness := buildPublishHarness(testingT, publish.SubdomainPolicyRetain)
	first := harness.createProject(testingT, "First")
	second := harness.createProject(testingT, "Second")

	_, err := harness.publisher.Publish(context.Background(), testOwner, publish.Request{ProjectID: first.ID, HTMLContent: "<p>1</p>", Subdomain: "bakery"})
	require.NoError(testingT, err)

	result, err := harness.publisher.Publish(context.Background(), testOwner, publish.Request{ProjectID: second.ID, HTMLContent: "<p>2</p>", Subdomain: "bakery"})
	require.NoError(testingT, err)
	require.NotEqual(testingT, "bakery", result.Subdomain)
	require.Equal(testingT, model.WithCollisionSuffix("bakery", fixedNow), result.Subdomain)

	served, err := harness.service.Repository().FindPublishedBySubdomain(context.Background(), result.Subdomain)
	require.NoError(testingT, err)
	require.Equal(testingT, second.ID, served.ID)
}

func TestPublishRetriesOnUniqueViolation(testingT *testing.T) {
	harness := buildPublishHarness(testingT, publish.SubdomainPolicyRetain)
	holder := harness.createProject(testingT, "Holder")
	squatter := harness.createProject(testingT, "Squatter")
	latecomer := harness.createProject(testingT, "Latecomer")

	_, err := harness.publisher.Publish(context.Background(), testOwner, publish.Request{ProjectID: holder.ID, HTMLContent: "<p>1</p>", Subdomain: "bakery"})
	require.NoError(testingT, err)
	suffixed := model.WithCollisionSuffix("bakery", fixedNow)
	_, err = harness.publisher.Publish(context.Background(), testOwner, publish.Request{ProjectID: squatter.ID, HTMLContent: "<p>2</p>", Subdomain: suffixed})
	require.NoError(testingT, err)

	result, err := harness.publisher.Publish(context.Background(), testOwner, publish.Request{ProjectID: latecomer.ID, HTMLContent: "<p>3</p>", Subdomain: "bakery"})
	require.NoError(testingT, err)
	require.NotEqual(testingT, "bakery", result.Subdomain)
	require.NotEqual(testingT, suffixed, result.Subdomain)
	require.Equal(testingT, model.WithCollisionSuffix("bakery", fixedNow.Add(time.Microsecond)), result.Subdomain)
}

func TestPublishValidatesInput(testingT *testing.T) {
	harness := buildPublishHarness(testingT, publish.SubdomainPolicyRetain)
	created := harness.createProject(testingT, "Bakery")

	_, err := harness.publisher.Publish(context.Background(), testOwner, publish.Request{HTMLContent: "<p></p>"})
	require.ErrorIs(testingT, err, publish.ErrMissingProjectID)

	_, err = harness.publisher.Publish(context.Background(), testOwner, publish.Request{ProjectID: created.ID, HTMLContent: "  "})
	require.ErrorIs(testingT, err, publish.ErrMissingHTMLContent)

	_, err = harness.publisher.Publish(context.Background(), auth.Caller{}, publish.Request{ProjectID: created.ID, HTMLContent: "<p></p>"})
	require.ErrorIs(testingT, err, auth.ErrMissingCredential)

	_, err = harness.publisher.Publish(context.Background(), testOwner, publish.Request{ProjectID: created.ID, HTMLContent: "<p></p>", Subdomain: "!!!"})
	require.ErrorIs(testingT, err, model.ErrInvalidSubdomain)
}

func TestPublishHidesProjectsTheCallerCannotPublish(testingT *testing.T) {
	harness := buildPublishHarness(testingT, publish.SubdomainPolicyRetain)
	created := harness.createProject(testingT, "Bakery")
	_, err := harness.service.InviteCollaborator(context.Background(), testOwner, created.ID, testViewer.Email, "view")
	require.NoError(testingT, err)
	_, err = harness.service.InviteCollaborator(context.Background(), testOwner, created.ID, testEditor.Email, "edit")
	require.NoError(testingT, err)

	request := publish.Request{ProjectID: created.ID, HTMLContent: "<p></p>"}
	_, err = harness.publisher.Publish(context.Background(), testStranger, request)
	require.ErrorIs(testingT, err, project.ErrProjectNotFound)

	_, err = harness.publisher.Publish(context.Background(), testViewer, request)
	require.ErrorIs(testingT, err, project.ErrProjectNotFound)

	_, err = harness.publisher.Publish(context.Background(), testEditor, request)
	require.NoError(testingT, err)
}

func TestUnpublishFollowsSubdomainPolicy(testingT *testing.T) {
	testCases := []struct {
		name              string
		policy            publish.SubdomainPolicy
		expectedSubdomain string
	}{
		{name: "retain", policy: publish.SubdomainPolicyRetain, expectedSubdomain: "bakery"},
		{name: "release", policy: publish.SubdomainPolicyRelease, expectedSubdomain: ""},
	}
	for _, testCase := range testCases {
		testingT.Run(testCase.name, func(testingT *testing.T) {
			harness := buildPublishHarness(testingT, testCase.policy)
			created := harness.createProject(testingT, "Bakery")
			_, err := harness.publisher.Publish(context.Background(), testOwner, publish.Request{ProjectID: created.ID, HTMLContent: "<p></p>", Subdomain: "bakery"})
			require.NoError(testingT, err)

			unpublished, err := harness.publisher.Unpublish(context.Background(), testOwner, created.ID)
			require.NoError(testingT, err)
			require.Equal(testingT, model.ProjectStatusDraft, unpublished.Status)
			require.Nil(testingT, unpublished.PublishedURL)
			require.Equal(testingT, testCase.expectedSubdomain, unpublished.SubdomainValue())

			_, err = harness.service.Repository().FindPublishedBySubdomain(context.Background(), "bakery")
			require.ErrorIs(testingT, err, project.ErrProjectNotFound)
		})
	}
}

func TestParseSubdomainPolicy(testingT *testing.T) {
	policy, err := publish.ParseSubdomainPolicy("")
	require.NoError(testingT, err)
	require.Equal(testingT, publish.SubdomainPolicyRetain, policy)

	policy, err = publish.ParseSubdomainPolicy(" Release ")
	require.NoError(testingT, err)
	require.Equal(testingT, publish.SubdomainPolicyRelease, policy)

	_, err = publish.ParseSubdomainPolicy("recycle")
	require.ErrorIs(testingT, err, publish.ErrInvalidSubdomainPolicy)
}

func TestBuildPublishedURLEscapesSubdomain(testingT *testing.T) {
	require.Equal(testingT,
		"https://sites.example.com/serve-site?subdomain=%D9%85%D8%AE%D8%A8%D8%B2",
		publish.BuildPublishedURL("https://sites.example.com", "مخبز"))
}
