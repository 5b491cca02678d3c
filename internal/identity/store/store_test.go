package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"idcapture/internal/camera"
	"idcapture/internal/identity/models"
	id "idcapture/pkg/domain"
	dErrors "idcapture/pkg/domain-errors"
)

type StoreSuite struct {
	suite.Suite
	store *Store
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.store = New(id.NewFlowID())
}

func artifact(t *testing.T, purpose camera.Purpose) *models.Artifact {
	t.Helper()
	a, err := models.NewArtifact(id.NewArtifactID(), purpose, []byte{1, 2, 3}, "image/jpeg", 1280, 800, "d", time.Now())
	require.NoError(t, err)
	return a
}

func (s *StoreSuite) TestSnapshotIsACopy() {
	s.Require().NoError(s.store.PutArtifact(artifact(s.T(), camera.PurposeSelfie)))

	snap := s.store.Snapshot()
	delete(snap.Artifacts, camera.PurposeSelfie)

	s.True(s.store.Snapshot().SelfieComplete())
}

func (s *StoreSuite) TestPutArtifactReplacesSamePurpose() {
	first := artifact(s.T(), camera.PurposeDocumentFront)
	second := artifact(s.T(), camera.PurposeDocumentFront)
	s.Require().NoError(s.store.PutArtifact(first))
	s.Require().NoError(s.store.PutArtifact(second))

	got, ok := s.store.Snapshot().Artifact(camera.PurposeDocumentFront)
	s.Require().True(ok)
	s.Equal(second.ID, got.ID)
	s.Len(s.store.Snapshot().Artifacts, 1)
}

func (s *StoreSuite) TestRejectsInvalidWrites() {
	err := s.store.SetStep(models.Step("passport"))
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	s.Error(s.store.PutArtifact(nil))
}

func (s *StoreSuite) TestSetStepClearsError() {
	s.store.SetError("identity.camera.error.device_busy")
	s.Require().NoError(s.store.SetStep(models.StepDocumentFront))

	snap := s.store.Snapshot()
	s.Equal(models.StepDocumentFront, snap.CurrentStep)
	s.Empty(snap.LastError)
}

func (s *StoreSuite) TestSubscribersSeeEveryChangeInOrder() {
	var got []uint64
	unsubscribe := s.store.Subscribe(func(sess models.Session) {
		got = append(got, sess.Version)
	})

	s.store.SetConsent(true)
	s.store.SetConsent(true) // unchanged, not published
	s.store.SetLoading(true)
	s.Require().NoError(s.store.SetStep(models.StepDocumentFront))
	unsubscribe()
	s.store.SetLoading(false)

	s.Equal([]uint64{1, 2, 3}, got)
}

func (s *StoreSuite) TestResetIsIdempotent() {
	flowID := s.store.Snapshot().FlowID
	s.store.SetConsent(true)
	s.Require().NoError(s.store.PutArtifact(artifact(s.T(), camera.PurposeDocumentFront)))
	s.Require().NoError(s.store.SetStep(models.StepDocumentBack))
	s.store.SetError("identity.camera.error.unknown")

	first := s.store.Reset()
	second := s.store.Reset()

	s.Equal(first, second)
	s.Equal(flowID, second.FlowID)
	s.Equal(models.StepOnboarding, second.CurrentStep)
	s.Empty(second.Artifacts)
	s.False(second.BiometricConsent)
	s.Empty(second.LastError)
}

func TestStore_ConcurrentWrites(t *testing.T) {
	st := New(id.NewFlowID())
	var (
		mu   sync.Mutex
		seen []uint64
	)
	st.Subscribe(func(sess models.Session) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, sess.Version)
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st.Update(func(sess *models.Session) bool {
				sess.IsLoading = i%2 == 0
				return true
			})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, uint64(50), st.Snapshot().Version)
	require.Len(t, seen, 50)
	for i, v := range seen {
		assert.Equal(t, uint64(i+1), v)
	}
}
