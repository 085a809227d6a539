package profile

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/v0xg/applypilot/internal/matcher"
)

const sampleYAML = `
personal:
  first_name: Ada
  last_name: Lovelace
  email: ada@example.com
  phone: "+44 20 7946 0000"
  city: London
  state: Greater London
work:
  authorized_to_work: true
  requires_sponsorship: false
  years_of_experience: 7
eeo:
  gender: Female
answers:
  "Why do you want to work here?": "The engines."
  "First Name": "Augusta Ada"
account:
  password: hunter2
resume: ./ada.pdf
`

func TestParseAndBuildQAMap(t *testing.T) {
	p, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "Ada Lovelace", p.FullName())
	assert.True(t, p.HasCredentials())
	assert.Equal(t, "ada@example.com", p.LoginEmail())

	qa := BuildQAMap(p)

	tests := []struct {
		label string
		want  string
	}{
		{"First Name *", "Augusta Ada"}, // override wins
		{"Legal Last Name", "Lovelace"},
		{"Email Address", "ada@example.com"},
		{"Are you legally authorized to work in the United States?", "Yes"},
		{"Will you now or in the future require sponsorship?", "No"},
		{"Gender", "Female"},
		{"Current Location", "London, Greater London"},
		{"Why do you want to work here?", "The engines."},
	}
	for _, tt := range tests {
		got, ok := matcher.FindBestAnswer(tt.label, qa)
		assert.True(t, ok, tt.label)
		assert.Equal(t, tt.want, got, tt.label)
	}

	_, ok := matcher.FindBestAnswer("Middle Name", qa)
	assert.False(t, ok)
}

func TestParseRejectsIncompleteProfile(t *testing.T) {
	_, err := Parse([]byte("personal:\n  first_name: Ada\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "personal.last_name")
	assert.Contains(t, err.Error(), "personal.email")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestResolveLocalResume(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cv.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o644))

	r := NewResumeResolver("us-east-1", dir, nil)

	got, err := r.Resolve(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	got, err = r.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = r.Resolve(context.Background(), dir)
	assert.Error(t, err)
}

type fakeS3 struct {
	calls int
	body  string
	err   error
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body + aws.StringValue(in.Key)))}, nil
}

func TestResolveS3ResumeDownloadsOnce(t *testing.T) {
	fake := &fakeS3{body: "resume:"}
	r := NewResumeResolver("us-east-1", t.TempDir(), nil)
	r.client = fake

	path, err := r.Resolve(context.Background(), "s3://bucket/people/ada.pdf")
	require.NoError(t, err)
	assert.Equal(t, "ada.pdf", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "resume:people/ada.pdf", string(data))

	again, err := r.Resolve(context.Background(), "s3://bucket/people/ada.pdf")
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.Equal(t, 1, fake.calls)
}

func TestResolveS3Errors(t *testing.T) {
	r := NewResumeResolver("us-east-1", t.TempDir(), nil)
	r.client = &fakeS3{err: errors.New("AccessDenied")}

	_, err := r.Resolve(context.Background(), "s3://bucket/cv.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDenied")

	_, err = r.Resolve(context.Background(), "s3://bucket-only")
	assert.Error(t, err)
}
