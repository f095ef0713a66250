package manifest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleManifest() *BuildManifest {
	return &BuildManifest{
		ID:        "6f1c1f7e-9d0b-4d53-9a0e-2c8f3c8e8a11",
		Timestamp: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Inputs: Inputs{
			ConfigHash: "cfg",
			Routes: []RouteInput{
				{Path: "/services", Template: "services", Critical: true},
				{Path: "/", Template: "home", Critical: true},
				{Path: "/contact", Template: "contact"},
			},
		},
		Outputs: Outputs{
			Routes: []RouteOutput{
				{Path: "/services", Status: RouteSucceeded, Artifact: "services/index.html", Fingerprint: "fp2"},
				{Path: "/", Status: RouteSucceeded, Artifact: "index.html", Fingerprint: "fp1"},
				{Path: "/contact", Status: RouteFailed, Error: "boom"},
			},
			ArtifactHashes: map[string]string{"index.html": "fp1", "services/index.html": "fp2"},
		},
		Status:   "partial",
		Duration: 1200,
	}
}

func TestWriteRead(t *testing.T) {
	dir := t.TempDir()
	m := sampleManifest()
	m.Sort()
	require.NoError(t, m.Write(dir))

	got, err := Read(dir)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, "/", got.Outputs.Routes[0].Path)
	assert.Equal(t, []string{"/contact"}, got.Failed())
	assert.True(t, m.Timestamp.Equal(got.Timestamp))
}

func TestReadMissing(t *testing.T) {
	_, err := Read(t.TempDir())
	assert.Error(t, err)
}

func TestHash(t *testing.T) {
	a := sampleManifest()
	b := sampleManifest()
	b.ID = "other"
	b.Timestamp = time.Now()
	b.Duration = 1

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb, "identity and timing do not affect the hash")

	b.Outputs.ArtifactHashes["index.html"] = "changed"
	hb, err = b.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
}

func TestFingerprint(t *testing.T) {
	body := []byte("<html><body>hello</body></html>")
	fp := Fingerprint("/about", "about", body)
	assert.NotEmpty(t, fp)
	assert.Equal(t, fp, Fingerprint("/about", "about", body))
	assert.NotEqual(t, fp, Fingerprint("/services", "about", body))
	assert.NotEqual(t, fp, Fingerprint("/about", "about", []byte("other")))
}

func TestConfigHash(t *testing.T) {
	type cfg struct{ A string }
	h1, err := ConfigHash(cfg{A: "x"})
	require.NoError(t, err)
	h2, err := ConfigHash(cfg{A: "y"})
	require.NoError(t, err)
	assert.Len(t, h1, 64)
	assert.NotEqual(t, h1, h2)
}
