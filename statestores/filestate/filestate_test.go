package filestate

import (
	"context"
	"encoding/json"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"gitlab.bluewillows.net/root/ddnsd/pkg/ddns"
)

func tempStatePath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "state.json")
}

func TestOpenFirstRunStartsEmpty(t *testing.T) {
	path := tempStatePath(t)
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	names, err := s.ListRecords(context.Background())
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("ListRecords on fresh store = %v, want empty", names)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Open must not create the main file until the first write")
	}
}

func TestSetRecordThenReopenRoundTrips(t *testing.T) {
	path := tempStatePath(t)
	ctx := context.Background()
	name := ddns.DomainName("home.example.com")
	ip := netip.MustParseAddr("203.0.113.4")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.SetRecord(ctx, name, ddns.StateRecord{LastIP: ip, ProviderMetadata: map[string]string{"zone_id": "abc"}}); err != nil {
		t.Fatalf("SetRecord: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("re-Open: %v", err)
	}
	got, ok, err := reopened.GetRecord(ctx, name)
	if err != nil || !ok {
		t.Fatalf("GetRecord after reopen: ok=%v err=%v", ok, err)
	}
	if got.LastIP != ip {
		t.Errorf("LastIP after reopen = %v, want %v", got.LastIP, ip)
	}
	if got.ProviderMetadata["zone_id"] != "abc" {
		t.Errorf("ProviderMetadata survived roundtrip = %q, want abc", got.ProviderMetadata["zone_id"])
	}
}

func TestSetRecordCreatesBackupOnSecondWrite(t *testing.T) {
	path := tempStatePath(t)
	ctx := context.Background()
	name := ddns.DomainName("home.example.com")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.SetLastIP(ctx, name, netip.MustParseAddr("203.0.113.4")); err != nil {
		t.Fatalf("first SetLastIP: %v", err)
	}
	if _, err := os.Stat(path + ".backup"); !os.IsNotExist(err) {
		t.Error("no backup should exist after the first write")
	}

	if err := s.SetLastIP(ctx, name, netip.MustParseAddr("203.0.113.5")); err != nil {
		t.Fatalf("second SetLastIP: %v", err)
	}
	if _, err := os.Stat(path + ".backup"); err != nil {
		t.Errorf("backup file should exist after second write: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file must be gone after a successful write")
	}
}

func TestOpenRecoversFromBackupWhenMainCorrupt(t *testing.T) {
	path := tempStatePath(t)
	ctx := context.Background()
	name := ddns.DomainName("home.example.com")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = s.SetLastIP(ctx, name, netip.MustParseAddr("203.0.113.4"))
	_ = s.SetLastIP(ctx, name, netip.MustParseAddr("203.0.113.5"))
	_ = s.Close()

	if err := os.WriteFile(path, []byte("{not valid json"), 0o640); err != nil {
		t.Fatalf("corrupting main file: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open should recover from backup: %v", err)
	}
	got, err := reopened.GetLastIP(ctx, name)
	if err != nil {
		t.Fatalf("GetLastIP: %v", err)
	}
	if got.String() != "203.0.113.4" {
		t.Errorf("recovered LastIP = %v, want 203.0.113.4 (the backup predates the second write)", got)
	}

	// main file should have been restored from backup
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading restored main file: %v", err)
	}
	var doc onDiskState
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Errorf("restored main file is not valid JSON: %v", err)
	}
}

func TestOpenFailsWhenBothMainAndBackupCorrupt(t *testing.T) {
	path := tempStatePath(t)
	if err := os.WriteFile(path, []byte("{bad"), 0o640); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path+".backup", []byte("{also bad"), 0o640); err != nil {
		t.Fatal(err)
	}

	_, err := Open(path)
	if err == nil {
		t.Fatal("expected Open to fail when both main and backup are corrupt")
	}
	if ddns.Classify(err) != ddns.KindConfig {
		t.Errorf("Classify(err) = %v, want KindConfig", ddns.Classify(err))
	}
}

func TestOpenFailsWhenVersionMissing(t *testing.T) {
	path := tempStatePath(t)
	if err := os.WriteFile(path, []byte(`{"records":{}}`), 0o640); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected Open to fail on a document missing the version field")
	}
}

func TestDeleteRecordPersists(t *testing.T) {
	path := tempStatePath(t)
	ctx := context.Background()
	name := ddns.DomainName("home.example.com")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = s.SetLastIP(ctx, name, netip.MustParseAddr("203.0.113.4"))
	if err := s.DeleteRecord(ctx, name); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("re-Open: %v", err)
	}
	if _, ok, _ := reopened.GetRecord(ctx, name); ok {
		t.Error("deleted record reappeared after reopen")
	}
}

func TestFilePermissions(t *testing.T) {
	path := tempStatePath(t)
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.SetLastIP(context.Background(), "home.example.com", netip.MustParseAddr("203.0.113.4")); err != nil {
		t.Fatalf("SetLastIP: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o640 {
		t.Errorf("file mode = %v, want 0640", info.Mode().Perm())
	}
}
