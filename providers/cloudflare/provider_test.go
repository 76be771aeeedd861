package cloudflare

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"gitlab.bluewillows.net/root/ddnsd/pkg/ddns"
)

// cloudflareServer builds a test server backing a single zone with an
// in-memory record set, mimicking enough of the Cloudflare API v4 surface
// for provider-level exercise.
func cloudflareServer(t *testing.T, zoneName, zoneID string, initial []dnsRecord) *httptest.Server {
	t.Helper()
	records := append([]dnsRecord{}, initial...)
	mux := http.NewServeMux()

	mux.HandleFunc("/zones", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if name == zoneName {
			writeAPIResponse(w, http.StatusOK, true, []zoneResult{{ID: zoneID, Name: zoneName}}, nil)
			return
		}
		writeAPIResponse(w, http.StatusOK, true, []zoneResult{}, nil)
	})

	mux.HandleFunc("/zones/"+zoneID+"/dns_records", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			rtype := r.URL.Query().Get("type")
			name := r.URL.Query().Get("name")
			var matched []dnsRecord
			for _, rec := range records {
				if rec.Type == rtype && rec.Name == name {
					matched = append(matched, rec)
				}
			}
			writeAPIResponse(w, http.StatusOK, true, matched, nil)
		case http.MethodPost:
			var req recordRequest
			json.NewDecoder(r.Body).Decode(&req)
			rec := dnsRecord{ID: "new-id", Type: req.Type, Name: req.Name, Content: req.Content, TTL: req.TTL, Proxied: req.Proxied, ZoneID: zoneID}
			records = append(records, rec)
			writeAPIResponse(w, http.StatusOK, true, rec, nil)
		}
	})

	mux.HandleFunc("/zones/"+zoneID+"/dns_records/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/zones/"+zoneID+"/dns_records/"):]
		if r.Method == http.MethodPut {
			var req recordRequest
			json.NewDecoder(r.Body).Decode(&req)
			for i := range records {
				if records[i].ID == id {
					records[i].Content = req.Content
					records[i].TTL = req.TTL
					writeAPIResponse(w, http.StatusOK, true, records[i], nil)
					return
				}
			}
			writeAPIResponse(w, http.StatusNotFound, false, nil, []apiError{{Code: 81044, Message: "record not found"}})
		}
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestProvider(t *testing.T, server *httptest.Server, zone string) *Provider {
	t.Helper()
	cfg := &Config{Token: "tok", Zone: zone, TTL: 300}
	p, err := New("cf-test", cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.client = NewClient(cfg.Token, WithAPIEndpoint(server.URL))
	return p
}

func newDryRunTestProvider(t *testing.T, server *httptest.Server, zone string) *Provider {
	t.Helper()
	cfg := &Config{Token: "tok", Zone: zone, TTL: 300}
	p, err := New("cf-test", cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.client = NewClient(cfg.Token, WithAPIEndpoint(server.URL), WithDryRun(true))
	return p
}

func TestProviderUpdateRecordCreatesWhenAbsent(t *testing.T) {
	server := cloudflareServer(t, "example.com", "zone123", nil)
	p := newTestProvider(t, server, "example.com")

	result, err := p.UpdateRecord(context.Background(), ddns.DomainName("host.example.com"), netip.MustParseAddr("203.0.113.1"))
	if err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}
	if result.Outcome != ddns.UpdateOutcomeCreated {
		t.Errorf("Outcome = %v, want Created", result.Outcome)
	}
}

func TestProviderUpdateRecordUnchangedWhenSame(t *testing.T) {
	server := cloudflareServer(t, "example.com", "zone123", []dnsRecord{
		{ID: "rec1", Type: "A", Name: "host.example.com", Content: "203.0.113.1", TTL: 300},
	})
	p := newTestProvider(t, server, "example.com")

	result, err := p.UpdateRecord(context.Background(), ddns.DomainName("host.example.com"), netip.MustParseAddr("203.0.113.1"))
	if err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}
	if result.Outcome != ddns.UpdateOutcomeUnchanged {
		t.Errorf("Outcome = %v, want Unchanged", result.Outcome)
	}
}

func TestProviderUpdateRecordUpdatesWhenDifferent(t *testing.T) {
	server := cloudflareServer(t, "example.com", "zone123", []dnsRecord{
		{ID: "rec1", Type: "A", Name: "host.example.com", Content: "203.0.113.1", TTL: 300},
	})
	p := newTestProvider(t, server, "example.com")

	result, err := p.UpdateRecord(context.Background(), ddns.DomainName("host.example.com"), netip.MustParseAddr("203.0.113.2"))
	if err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}
	if result.Outcome != ddns.UpdateOutcomeUpdated {
		t.Errorf("Outcome = %v, want Updated", result.Outcome)
	}
	if result.PreviousIP == nil || *result.PreviousIP != netip.MustParseAddr("203.0.113.1") {
		t.Errorf("PreviousIP = %v, want 203.0.113.1", result.PreviousIP)
	}
}

func TestProviderUpdateRecordDryRunAbsentReportsUpdated(t *testing.T) {
	server := cloudflareServer(t, "example.com", "zone123", nil)
	p := newDryRunTestProvider(t, server, "example.com")

	result, err := p.UpdateRecord(context.Background(), ddns.DomainName("host.example.com"), netip.MustParseAddr("203.0.113.1"))
	if err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}
	if result.Outcome != ddns.UpdateOutcomeUpdated {
		t.Errorf("Outcome = %v, want Updated", result.Outcome)
	}
	if result.PreviousIP != nil {
		t.Errorf("PreviousIP = %v, want nil", result.PreviousIP)
	}
	if result.NewIP != netip.MustParseAddr("203.0.113.1") {
		t.Errorf("NewIP = %v, want 203.0.113.1", result.NewIP)
	}
}

func TestProviderUpdateRecordDryRunDoesNotCreate(t *testing.T) {
	server := cloudflareServer(t, "example.com", "zone123", nil)
	p := newDryRunTestProvider(t, server, "example.com")

	if _, err := p.UpdateRecord(context.Background(), ddns.DomainName("host.example.com"), netip.MustParseAddr("203.0.113.1")); err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}

	// Dry-run must never have actually created the record at Cloudflare.
	if _, err := p.GetRecord(context.Background(), ddns.DomainName("host.example.com")); err == nil {
		t.Error("GetRecord after dry-run update: want not-found error, got nil (record was actually created)")
	}
}

func TestProviderUpdateRecordDryRunDifferingReportsUpdated(t *testing.T) {
	server := cloudflareServer(t, "example.com", "zone123", []dnsRecord{
		{ID: "rec1", Type: "A", Name: "host.example.com", Content: "203.0.113.1", TTL: 300},
	})
	p := newDryRunTestProvider(t, server, "example.com")

	result, err := p.UpdateRecord(context.Background(), ddns.DomainName("host.example.com"), netip.MustParseAddr("203.0.113.2"))
	if err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}
	if result.Outcome != ddns.UpdateOutcomeUpdated {
		t.Errorf("Outcome = %v, want Updated", result.Outcome)
	}
	if result.PreviousIP == nil || *result.PreviousIP != netip.MustParseAddr("203.0.113.1") {
		t.Errorf("PreviousIP = %v, want 203.0.113.1", result.PreviousIP)
	}
}

func TestProviderGetRecordNotFound(t *testing.T) {
	server := cloudflareServer(t, "example.com", "zone123", nil)
	p := newTestProvider(t, server, "example.com")

	_, err := p.GetRecord(context.Background(), ddns.DomainName("missing.example.com"))
	if err == nil {
		t.Fatal("GetRecord for missing record: want error, got nil")
	}
}

func TestProviderEffectiveTTLForcesOneWhenProxied(t *testing.T) {
	p := &Provider{ttl: 300, proxied: true}
	if ttl := p.effectiveTTL(); ttl != 1 {
		t.Errorf("effectiveTTL with proxied=true = %d, want 1", ttl)
	}
}

func TestProviderSupportsRecord(t *testing.T) {
	p := &Provider{zone: "example.com"}
	if !p.SupportsRecord(ddns.DomainName("host.example.com")) {
		t.Error("SupportsRecord(host.example.com): want true")
	}
	if p.SupportsRecord(ddns.DomainName("host.other.com")) {
		t.Error("SupportsRecord(host.other.com): want false")
	}
}

func TestProviderAddressRecordTypeSelectsFamily(t *testing.T) {
	p := &Provider{}
	if rt := p.addressRecordType(netip.MustParseAddr("203.0.113.1")); rt != recordTypeA {
		t.Errorf("addressRecordType(v4) = %s, want A", rt)
	}
	if rt := p.addressRecordType(netip.MustParseAddr("2001:db8::1")); rt != recordTypeAAAA {
		t.Errorf("addressRecordType(v6) = %s, want AAAA", rt)
	}
}
