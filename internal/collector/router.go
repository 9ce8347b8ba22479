package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Router API endpoints.
const (
	hostInfoPath = "/api/system/HostInfo"
	wanPath      = "/api/ntwk/wan?type=active"
)

// AuthedGetter issues authenticated GETs against device API paths.
// *routerauth.Session satisfies it.
type AuthedGetter interface {
	Get(ctx context.Context, path string) (*http.Response, error)
}

// RouterCollector polls the router's host table and WAN status through an
// authenticated session.
type RouterCollector struct {
	// Delay paces consecutive requests to the device.
	Delay time.Duration
}

// Collect runs one full router collection pass. The session comes from the
// auth manager and must have been validated this cycle.
func (c *RouterCollector) Collect(ctx context.Context, session AuthedGetter) (*RouterSnapshot, error) {
	hostsRaw, err := c.get(ctx, session, hostInfoPath, "host info")
	if err != nil {
		return nil, err
	}
	hosts, summary := processHosts(hostsRaw)

	if err = pause(ctx, c.Delay); err != nil {
		return nil, err
	}

	wanRaw, err := c.get(ctx, session, wanPath, "wan info")
	if err != nil {
		return nil, err
	}
	wan := processWAN(wanRaw)

	log.WithFields(log.Fields{"records": len(hosts), "status": wan.ConnectionStatus}).Debug("router collection complete")
	return &RouterSnapshot{Hosts: hosts, Summary: summary, WAN: wan}, nil
}

func (c *RouterCollector) get(ctx context.Context, session AuthedGetter, path, what string) ([]byte, error) {
	resp, err := session.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("collector: fetch %s: %w", what, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("collector: fetch %s: HTTP %d", what, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("collector: read %s: %w", what, err)
	}
	return body, nil
}

// processHosts flattens the HostInfo response. Inactive hosts are kept in
// the record list (the store tags them) but only counted as active in the
// summary when the router marks them so.
func processHosts(raw []byte) ([]HostRecord, HostSummary) {
	var records []HostRecord
	var summary HostSummary

	gjson.GetBytes(raw, "Hosts").ForEach(func(_, host gjson.Result) bool {
		record := HostRecord{
			MAC:             strings.ToLower(host.Get("MACAddress").String()),
			IP:              host.Get("IPAddress").String(),
			Hostname:        host.Get("HostName").String(),
			InterfaceType:   host.Get("InterfaceType").String(),
			Layer2Interface: host.Get("Layer2Interface").String(),
			Active:          host.Get("Active").Bool(),
			RxKBytes:        host.Get("RxKBytes").Int(),
			TxKBytes:        host.Get("TxKBytes").Int(),
			RateMbps:        host.Get("rate").Int(),
			RSSI:            host.Get("rssi").Int(),
		}
		if record.Hostname == "" {
			record.Hostname = "unknown"
		}
		records = append(records, record)

		summary.Total++
		if record.Active {
			summary.Active++
		}
		if strings.EqualFold(record.InterfaceType, "Wireless") {
			summary.Wireless++
		} else {
			summary.Wired++
		}
		return true
	})
	return records, summary
}

// processWAN flattens the active WAN interface response.
func processWAN(raw []byte) WANRecord {
	body := gjson.ParseBytes(raw)
	status := body.Get("ConnectionStatus").String()
	return WANRecord{
		ConnectionStatus:  status,
		AccessStatus:      body.Get("AccessStatus").String(),
		Connected:         status == "Connected",
		InterfaceName:     body.Get("Name").String(),
		IPv4Address:       body.Get("IPv4Addr").String(),
		IPv4Gateway:       body.Get("IPv4Gateway").String(),
		UptimeSeconds:     body.Get("Uptime").Int(),
		UpBandwidthKbps:   body.Get("UpBandwidth").Int(),
		DownBandwidthKbps: body.Get("DownBandwidth").Int(),
		UpMaxKbps:         body.Get("UpBandwidthMax").Int(),
		DownMaxKbps:       body.Get("DownBandwidthMax").Int(),
	}
}

// pause waits the pacing delay or returns early when the cycle is
// cancelled.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
