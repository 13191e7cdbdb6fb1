package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/cinebridge/cli/reader"
	"github.com/pithecene-io/cinebridge/ipc"
	"github.com/pithecene-io/cinebridge/lode"
	"github.com/pithecene-io/cinebridge/protocol"
	"github.com/pithecene-io/cinebridge/server"
	"github.com/pithecene-io/cinebridge/types"
)

const (
	testKey   = "0123456789abcdef"
	testNonce = "0123456789ab"

	sampleManifest = "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:6\n#EXTINF:6.0,\nseg0.ts\n#EXT-X-ENDLIST\n"
)

func testKeyMaterial(t *testing.T) types.KeyMaterial {
	t.Helper()
	km, err := types.NewKeyMaterial([]byte(testKey), []byte(testNonce), 128)
	if err != nil {
		t.Fatalf("NewKeyMaterial: %v", err)
	}
	return km
}

// runApp runs one command line against a test app and returns stdout,
// stderr and the action error.
func runApp(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := &cli.App{
		Name:           "cinebridge",
		Writer:         &stdout,
		ErrWriter:      &stderr,
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: []*cli.Command{
			ResolveCommand(),
			PlayCommand(),
			SealCommand(),
			InspectCommand(),
			StatsCommand(),
			ListCommand(),
			DebugCommand(),
			VersionCommand("abc123"),
		},
	}
	err := app.Run(append([]string{"cinebridge"}, args...))
	return stdout.String(), stderr.String(), err
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return exitSuccess
	}
	var ec cli.ExitCoder
	if !errors.As(err, &ec) {
		t.Fatalf("error is not an ExitCoder: %v", err)
	}
	return ec.ExitCode()
}

// envelopeOrigin serves sealed manifests from an in-memory directory.
func envelopeOrigin(t *testing.T, km types.KeyMaterial, files map[string]string) *httptest.Server {
	t.Helper()
	root := fstest.MapFS{}
	for name, content := range files {
		root[name] = &fstest.MapFile{Data: []byte(content)}
	}
	srv, err := server.New(server.Config{Root: root, KeyMaterial: km})
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func keyArgs() []string {
	return []string{"--key", testKey, "--nonce", testNonce}
}

func TestReadOnlyFlags_IncludesTUI(t *testing.T) {
	hasTUI := false
	for _, f := range ReadOnlyFlags() {
		if f.Names()[0] == "tui" {
			hasTUI = true
			break
		}
	}
	if !hasTUI {
		t.Error("ReadOnlyFlags should include --tui flag for explicit error handling")
	}
}

func TestIsStderrTTY(_ *testing.T) {
	// Actual TTY behavior depends on runtime environment.
	_ = isStderrTTY()
}

func TestParseHeaders(t *testing.T) {
	got, err := parseHeaders(
		map[string]string{"Referer": "https://a.example", "X-Keep": "1"},
		[]string{"Referer: https://b.example", "Authorization:  Bearer t "},
	)
	if err != nil {
		t.Fatalf("parseHeaders: %v", err)
	}
	want := map[string]string{
		"Referer":       "https://b.example",
		"X-Keep":        "1",
		"Authorization": "Bearer t",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}

	if got, err := parseHeaders(nil, nil); err != nil || got != nil {
		t.Errorf("empty input = %v, %v; want nil, nil", got, err)
	}
	for _, bad := range []string{"no-colon", ": value"} {
		if _, err := parseHeaders(nil, []string{bad}); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"transport", &protocol.TransportError{StatusCode: 503}, exitTransport},
		{"protocol", &protocol.ProtocolError{Code: protocol.CodeNotFound}, exitProtocol},
		{"format", &protocol.FormatError{Msg: "missing #EXTM3U"}, exitFormat},
		{"other", errors.New("boom"), exitConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCodeFor(tt.err); got != tt.want {
				t.Errorf("exitCodeFor = %d, want %d", got, tt.want)
			}
		})
	}

	if exitFor(nil) != nil {
		t.Error("exitFor(nil) should be nil")
	}
}

func TestValidatePolicyConfig(t *testing.T) {
	tests := []struct {
		choice  policyChoice
		wantErr bool
	}{
		{policyChoice{name: ""}, false},
		{policyChoice{name: "strict"}, false},
		{policyChoice{name: "noop"}, false},
		{policyChoice{name: "buffered", bufferRecords: 10}, false},
		{policyChoice{name: "buffered", bufferRecords: -1}, true},
		{policyChoice{name: "eventual"}, true},
	}
	for _, tt := range tests {
		err := validatePolicyConfig(tt.choice)
		if (err != nil) != tt.wantErr {
			t.Errorf("validatePolicyConfig(%+v) error = %v, wantErr %v", tt.choice, err, tt.wantErr)
		}
	}
}

func TestBackendLabel(t *testing.T) {
	if got := backendLabel(policyChoice{}, reader.StorageOptions{}); got != "" {
		t.Errorf("no path: got %q", got)
	}
	if got := backendLabel(policyChoice{name: "noop"}, reader.StorageOptions{Path: "/tmp/x"}); got != "" {
		t.Errorf("noop: got %q", got)
	}
	if got := backendLabel(policyChoice{}, reader.StorageOptions{Path: "/tmp/x"}); got != "fs" {
		t.Errorf("default backend: got %q", got)
	}
	if got := backendLabel(policyChoice{}, reader.StorageOptions{Path: "b/p", Backend: "s3"}); got != "s3" {
		t.Errorf("s3: got %q", got)
	}
}

func TestSeal_ThenOpen(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "video.m3u8")
	if err := os.WriteFile(manifest, []byte(sampleManifest), 0o644); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := runApp(t, append(append([]string{"seal"}, keyArgs()...), manifest)...)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	got, err := protocol.OpenEnvelope([]byte(stdout), testKeyMaterial(t))
	if err != nil {
		t.Fatalf("OpenEnvelope: %v", err)
	}
	if got != sampleManifest {
		t.Errorf("round trip mismatch:\n%q", got)
	}
}

func TestSeal_KeyFromConfig(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "video.m3u8")
	if err := os.WriteFile(manifest, []byte(sampleManifest), 0o644); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(dir, "cinebridge.yaml")
	cfg := "key:\n  key: " + testKey + "\n  nonce: " + testNonce + "\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "video.json")

	if _, _, err := runApp(t, "seal", "--config", cfgPath, "--out", out, manifest); err != nil {
		t.Fatalf("seal: %v", err)
	}
	body, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := protocol.OpenEnvelope(body, testKeyMaterial(t)); err != nil {
		t.Fatalf("envelope not sealed with config key: %v", err)
	}
}

func TestSeal_RejectsNonPlaylist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, _, err := runApp(t, append(append([]string{"seal"}, keyArgs()...), path)...)
	if got := exitCode(t, err); got != exitFormat {
		t.Errorf("exit code = %d, want %d", got, exitFormat)
	}
}

func TestSeal_MissingKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "video.m3u8")
	if err := os.WriteFile(path, []byte(sampleManifest), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CINEBRIDGE_KEY", "")
	t.Setenv("CINEBRIDGE_NONCE", "")
	t.Setenv("CINEBRIDGE_SECRET", "")
	_, _, err := runApp(t, "seal", path)
	if got := exitCode(t, err); got != exitConfig {
		t.Errorf("exit code = %d, want %d", got, exitConfig)
	}
}

func TestResolve_Raw(t *testing.T) {
	origin := envelopeOrigin(t, testKeyMaterial(t), map[string]string{"video.m3u8": sampleManifest})

	stdout, _, err := runApp(t, append(append([]string{"resolve"}, keyArgs()...), origin.URL+"/video.c3u8")...)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if stdout != sampleManifest {
		t.Errorf("stdout = %q, want manifest", stdout)
	}
}

func TestResolve_ExitCodes(t *testing.T) {
	origin := envelopeOrigin(t, testKeyMaterial(t), map[string]string{"video.m3u8": sampleManifest})
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(down.Close)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"missing manifest", append(keyArgs(), origin.URL+"/missing.c3u8"), exitProtocol},
		{"wrong key", []string{"--key", "fedcba9876543210", "--nonce", testNonce, origin.URL + "/video.c3u8"}, exitCrypto},
		{"origin down", append(keyArgs(), down.URL+"/video.c3u8"), exitTransport},
		{"plain url", append(keyArgs(), origin.URL+"/video.m3u8"), exitConfig},
		{"no url", keyArgs(), exitConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runApp(t, append([]string{"resolve"}, tt.args...)...)
			if got := exitCode(t, err); got != tt.want {
				t.Errorf("exit code = %d, want %d (err: %v)", got, tt.want, err)
			}
		})
	}
}

func TestResolve_Frames(t *testing.T) {
	origin := envelopeOrigin(t, testKeyMaterial(t), map[string]string{"video.m3u8": sampleManifest})

	args := append([]string{"resolve", "--frame", "--session-id", "sess-1"}, keyArgs()...)
	stdout, _, err := runApp(t, append(args, origin.URL+"/video.c3u8?token=secret")...)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	payload, err := ipc.NewFrameDecoder(strings.NewReader(stdout)).ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	frame, err := ipc.DecodeManifest(payload)
	if err != nil {
		t.Fatalf("DecodeManifest: %v", err)
	}
	if frame.SessionID != "sess-1" || frame.Data != sampleManifest {
		t.Errorf("unexpected frame: %+v", frame)
	}
	if strings.Contains(frame.URL, "secret") {
		t.Errorf("frame URL not redacted: %s", frame.URL)
	}

	// Failures still produce one frame.
	args = append([]string{"resolve", "--frame", "--session-id", "sess-2"}, keyArgs()...)
	stdout, _, err = runApp(t, append(args, origin.URL+"/missing.c3u8")...)
	if got := exitCode(t, err); got != exitProtocol {
		t.Errorf("exit code = %d, want %d", got, exitProtocol)
	}
	payload, err = ipc.NewFrameDecoder(strings.NewReader(stdout)).ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	errFrame, err := ipc.DecodeResolveError(payload)
	if err != nil {
		t.Fatalf("DecodeResolveError: %v", err)
	}
	if errFrame.Kind != protocol.KindProtocol {
		t.Errorf("kind = %q, want protocol", errFrame.Kind)
	}
}

func TestInspectManifest_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "video.m3u8")
	if err := os.WriteFile(path, []byte(sampleManifest), 0o644); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := runApp(t, "inspect", "manifest", "--format", "json", "--file", path)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	var report reader.ManifestReport
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, stdout)
	}
	if report.Kind != "media" || report.Segments != 1 || !report.Closed || report.Encrypted {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestInspectManifest_EncryptedURL(t *testing.T) {
	origin := envelopeOrigin(t, testKeyMaterial(t), map[string]string{"video.m3u8": sampleManifest})

	args := append([]string{"inspect", "manifest", "--format", "json"}, keyArgs()...)
	stdout, _, err := runApp(t, append(args, origin.URL+"/video.c3u8")...)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if strings.Contains(stdout, "seg0.ts") {
		t.Error("inspect must not print manifest content")
	}
	var report reader.ManifestReport
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !report.Encrypted || report.Bytes != len(sampleManifest) {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestInspectManifest_PlainURL(t *testing.T) {
	plain := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Test") != "yes" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(sampleManifest))
	}))
	t.Cleanup(plain.Close)

	stdout, _, err := runApp(t, "inspect", "manifest", "--format", "json", "-H", "X-Test: yes", plain.URL+"/video.m3u8")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	var report reader.ManifestReport
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if report.Encrypted || report.Kind != "media" {
		t.Errorf("unexpected report: %+v", report)
	}

	_, _, err = runApp(t, "inspect", "manifest", plain.URL+"/video.m3u8")
	if got := exitCode(t, err); got != exitTransport {
		t.Errorf("exit code = %d, want %d", got, exitTransport)
	}
}

func writeAuditRecords(t *testing.T, dir string, records ...*types.SessionRecord) {
	t.Helper()
	client, err := lode.NewLodeClient(lode.Config{Source: "test"}, dir)
	if err != nil {
		t.Fatalf("NewLodeClient: %v", err)
	}
	if err := client.WriteRecords(t.Context(), records); err != nil {
		t.Fatalf("WriteRecords: %v", err)
	}
}

func auditRecord(id string, outcome types.SessionOutcome, ts time.Time) *types.SessionRecord {
	return &types.SessionRecord{
		SessionID:     id,
		URL:           "https://cdn.example/video.c3u8",
		Encrypted:     true,
		Outcome:       outcome,
		State:         "ready",
		ManifestBytes: 96,
		Timestamp:     ts,
		DurationMs:    30,
	}
}

func TestListAndStatsSessions(t *testing.T) {
	dir := t.TempDir()
	ts := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	writeAuditRecords(t, dir,
		auditRecord("s-1", types.OutcomeReady, ts),
		auditRecord("s-1", types.OutcomeDestroyed, ts.Add(time.Minute)),
		auditRecord("s-2", types.OutcomeReady, ts.Add(2*time.Minute)),
	)

	stdout, _, err := runApp(t, "list", "sessions", "--format", "json", "--storage-path", dir)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	var rows []reader.SessionRow
	if err := json.Unmarshal([]byte(stdout), &rows); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, stdout)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}

	stdout, _, err = runApp(t, "list", "sessions", "--format", "json", "--storage-path", dir, "--session", "s-1", "--outcome", "destroyed")
	if err != nil {
		t.Fatalf("list sessions filtered: %v", err)
	}
	rows = nil
	if err := json.Unmarshal([]byte(stdout), &rows); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(rows) != 1 || rows[0].Outcome != "destroyed" {
		t.Errorf("unexpected filtered rows: %+v", rows)
	}

	stdout, _, err = runApp(t, "stats", "sessions", "--format", "json", "--storage-path", dir)
	if err != nil {
		t.Fatalf("stats sessions: %v", err)
	}
	var stats reader.SessionStats
	if err := json.Unmarshal([]byte(stdout), &stats); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if stats.Records != 3 || stats.Sessions != 2 || stats.Ready != 2 || stats.Destroyed != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestListSessions_Errors(t *testing.T) {
	_, _, err := runApp(t, "list", "sessions")
	if got := exitCode(t, err); got != exitConfig {
		t.Errorf("missing path: exit code = %d, want %d", got, exitConfig)
	}

	_, _, err = runApp(t, "list", "sessions", "--tui", "--storage-path", t.TempDir())
	if got := exitCode(t, err); got != exitConfig {
		t.Errorf("--tui: exit code = %d, want %d", got, exitConfig)
	}
}

const proxyConfig = `
proxies:
  residential:
    strategy: round_robin
    endpoints:
      - {protocol: http, host: p1.example, port: 8080}
      - {protocol: http, host: p2.example, port: 8080, username: user, password: pass}
  sticky:
    strategy: sticky
    sticky:
      scope: domain
    endpoints:
      - {protocol: socks5, host: s1.example, port: 1080}
`

func TestListPools(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "cinebridge.yaml")
	if err := os.WriteFile(cfgPath, []byte(proxyConfig), 0o644); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := runApp(t, "list", "pools", "--format", "json", "--config", cfgPath)
	if err != nil {
		t.Fatalf("list pools: %v", err)
	}
	if strings.Contains(stdout, "pass") {
		t.Error("pool listing leaked a password")
	}
	var rows []reader.PoolRow
	if err := json.Unmarshal([]byte(stdout), &rows); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(rows) != 2 || rows[0].Name != "residential" || rows[0].Endpoints != 2 || rows[1].Sticky != "domain" {
		t.Errorf("unexpected pools: %+v", rows)
	}
}

func TestDebugResolveProxy(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "cinebridge.yaml")
	if err := os.WriteFile(cfgPath, []byte(proxyConfig), 0o644); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := runApp(t, "debug", "resolve-proxy", "--format", "json", "--config", cfgPath, "residential")
	if err != nil {
		t.Fatalf("resolve-proxy: %v", err)
	}
	var resp reader.ResolveProxyResponse
	if err := json.Unmarshal([]byte(stdout), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Endpoint.Host != "p1.example" || resp.Committed {
		t.Errorf("unexpected response: %+v", resp)
	}

	stdout, _, err = runApp(t, "debug", "resolve-proxy", "--format", "json", "--config", cfgPath, "--url", "https://cdn.example/a.c3u8", "sticky")
	if err != nil {
		t.Fatalf("resolve-proxy sticky: %v", err)
	}
	if !strings.Contains(stdout, "s1.example") {
		t.Errorf("unexpected sticky response: %s", stdout)
	}

	_, _, err = runApp(t, "debug", "resolve-proxy", "--config", cfgPath, "unknown")
	if got := exitCode(t, err); got != exitConfig {
		t.Errorf("unknown pool: exit code = %d, want %d", got, exitConfig)
	}
}

func TestDebugFrames(t *testing.T) {
	var buf bytes.Buffer
	enc := ipc.NewFrameEncoder(&buf)
	if err := enc.WriteFrame(ipc.NewManifestFrame("s-1", "https://cdn.example/a.c3u8", sampleManifest)); err != nil {
		t.Fatal(err)
	}
	if err := enc.WriteFrame(ipc.NewResolveErrorFrame("s-2", "https://cdn.example/b.c3u8", &protocol.ProtocolError{Code: 1002, Message: "not found"})); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "frames.bin")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := runApp(t, "debug", "frames", "--format", "json", path)
	if err != nil {
		t.Fatalf("debug frames: %v", err)
	}
	if strings.Contains(stdout, "seg0.ts") {
		t.Error("frame listing must not print manifest content")
	}
	var rows []reader.FrameRow
	if err := json.Unmarshal([]byte(stdout), &rows); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].Type != ipc.ManifestType || rows[0].Bytes != len(sampleManifest) {
		t.Errorf("unexpected manifest row: %+v", rows[0])
	}
	if rows[1].Type != ipc.ResolveErrorType || rows[1].Kind != protocol.KindProtocol {
		t.Errorf("unexpected error row: %+v", rows[1])
	}
}

func TestDecodeFrames_Truncated(t *testing.T) {
	var buf bytes.Buffer
	if err := ipc.NewFrameEncoder(&buf).WriteFrame(ipc.NewManifestFrame("s", "u", sampleManifest)); err != nil {
		t.Fatal(err)
	}
	truncated := buf.Bytes()[:buf.Len()-3]

	rows, err := decodeFrames(bytes.NewReader(truncated))
	if err == nil {
		t.Fatal("expected error for truncated stream")
	}
	if !ipc.IsFatalFrameError(err) {
		t.Errorf("expected fatal frame error, got %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("got %d rows, want 0", len(rows))
	}
}

func TestPlay_EncryptedSessionWithAudit(t *testing.T) {
	origin := envelopeOrigin(t, testKeyMaterial(t), map[string]string{"video.m3u8": sampleManifest})
	auditDir := t.TempDir()

	args := append([]string{"play", "--format", "json", "--session-id", "play-1", "--wait", "5s", "--storage-path", auditDir}, keyArgs()...)
	stdout, _, err := runApp(t, append(args, origin.URL+"/video.c3u8")...)
	if err != nil {
		t.Fatalf("play: %v", err)
	}

	var result PlayResult
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, stdout)
	}
	if result.SessionID != "play-1" || result.State != "ready" || result.Mode != "encrypted" {
		t.Errorf("unexpected result: %+v", result)
	}
	if result.Duration != 6 {
		t.Errorf("duration = %v, want 6", result.Duration)
	}
	if result.Metrics.LoaderDelivered != 1 || result.Metrics.StorageBackend != "fs" {
		t.Errorf("unexpected metrics: %+v", result.Metrics)
	}
	if result.Audit.RecordsPersisted != 2 {
		t.Errorf("records persisted = %d, want 2 (ready, destroyed)", result.Audit.RecordsPersisted)
	}

	stdout, _, err = runApp(t, "list", "sessions", "--format", "json", "--storage-path", auditDir, "--session", "play-1")
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	var rows []reader.SessionRow
	if err := json.Unmarshal([]byte(stdout), &rows); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("got %d audit rows, want 2", len(rows))
	}
}

func TestPlay_ResolveFailure(t *testing.T) {
	origin := envelopeOrigin(t, testKeyMaterial(t), map[string]string{})

	args := append([]string{"play", "--format", "json", "--wait", "1s"}, keyArgs()...)
	stdout, _, err := runApp(t, append(args, origin.URL+"/missing.c3u8")...)
	if got := exitCode(t, err); got != exitProtocol {
		t.Errorf("exit code = %d, want %d", got, exitProtocol)
	}

	var result PlayResult
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, stdout)
	}
	// The player stays attached without a manifest.
	if result.State != "ready" || result.Error == "" {
		t.Errorf("unexpected result: %+v", result)
	}
	if result.Metrics.ResolveFailureByKind[protocol.KindProtocol] != 1 {
		t.Errorf("unexpected metrics: %+v", result.Metrics)
	}
}

func TestVersion(t *testing.T) {
	stdout, _, err := runApp(t, "version", "--format", "json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var resp VersionResponse
	if err := json.Unmarshal([]byte(stdout), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Version != types.Version || resp.Commit != "abc123" || resp.Envelope != protocol.DefaultSuffix {
		t.Errorf("unexpected version: %+v", resp)
	}

	_, _, err = runApp(t, "version", "--tui")
	if got := exitCode(t, err); got != exitConfig {
		t.Errorf("--tui: exit code = %d, want %d", got, exitConfig)
	}
}

func TestResolve_ExecHandoff(t *testing.T) {
	cat, err := exec.LookPath("cat")
	if err != nil {
		t.Skipf("cat not available: %v", err)
	}
	origin := envelopeOrigin(t, testKeyMaterial(t), map[string]string{"video.m3u8": sampleManifest})

	args := append([]string{"resolve", "--exec", cat, "--session-id", "exec-1"}, keyArgs()...)
	stdout, _, err := runApp(t, append(args, origin.URL+"/video.c3u8")...)
	if err != nil {
		t.Fatalf("resolve --exec: %v", err)
	}

	// cat echoes the frame it received on stdin.
	payload, err := ipc.NewFrameDecoder(strings.NewReader(stdout)).ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	frame, err := ipc.DecodeManifest(payload)
	if err != nil {
		t.Fatalf("DecodeManifest: %v", err)
	}
	if frame.SessionID != "exec-1" || frame.Data != sampleManifest {
		t.Errorf("unexpected frame: %+v", frame)
	}
}

func TestResolve_ExecEngineFailure(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("sh not available: %v", err)
	}
	origin := envelopeOrigin(t, testKeyMaterial(t), map[string]string{"video.m3u8": sampleManifest})

	args := append([]string{"resolve", "--exec", sh, "--exec-arg", "-c", "--exec-arg", "cat >/dev/null; echo unsupported >&2; exit 7"}, keyArgs()...)
	_, _, err = runApp(t, append(args, origin.URL+"/video.c3u8")...)
	if got := exitCode(t, err); got != exitConfig {
		t.Errorf("exit code = %d, want %d", got, exitConfig)
	}
	if err == nil || !strings.Contains(err.Error(), "code 7: unsupported") {
		t.Errorf("unexpected error: %v", err)
	}
}
