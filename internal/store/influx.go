// Package store persists collected records: metric points to InfluxDB and
// switch event logs to an optional Postgres archive.
package store

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	log "github.com/sirupsen/logrus"

	"github.com/netmon-dev/netmon/internal/collector"
	"github.com/netmon-dev/netmon/internal/config"
)

// Measurement names, one per record family.
const (
	measurementCPU      = "cpu_usage"
	measurementSystem   = "system_info"
	measurementPorts    = "port_stats"
	measurementMACs     = "mac_table"
	measurementLogs     = "switch_logs"
	measurementHosts    = "router_hosts"
	measurementHostSumm = "host_summary"
	measurementWAN      = "wan_status"
)

// InfluxWriter writes snapshots as measurement points through the blocking
// write API, matching the strictly sequential cycle model.
type InfluxWriter struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
}

// NewInfluxWriter connects to InfluxDB with the configured URL and token.
func NewInfluxWriter(cfg config.InfluxConfig) *InfluxWriter {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxWriter{
		client: client,
		write:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}
}

// Close releases the underlying HTTP resources.
func (w *InfluxWriter) Close() {
	if w.client != nil {
		w.client.Close()
	}
}

// WriteSwitch persists one switch snapshot. All points of the snapshot
// share a single timestamp so the cycle appears atomic in queries.
func (w *InfluxWriter) WriteSwitch(ctx context.Context, snapshot *collector.SwitchSnapshot) error {
	now := time.Now().UTC()

	cpu := influxdb2.NewPointWithMeasurement(measurementCPU).
		AddTag("switch_ip", snapshot.CPU.SwitchIP).
		AddTag("status", snapshot.CPU.Status).
		AddField("cpu_percent", snapshot.CPU.UsagePercent).
		SetTime(now)

	system := influxdb2.NewPointWithMeasurement(measurementSystem).
		AddTag("switch_ip", snapshot.System.SwitchIP).
		AddTag("model", snapshot.System.Model).
		AddField("temperature", snapshot.System.Temperature).
		AddField("uptime_seconds", snapshot.System.UptimeSeconds).
		AddField("firmware", snapshot.System.Firmware).
		SetTime(now)

	if err := w.write.WritePoint(ctx, cpu, system); err != nil {
		return fmt.Errorf("store: write switch system points: %w", err)
	}

	for _, port := range snapshot.Ports {
		p := influxdb2.NewPointWithMeasurement(measurementPorts).
			AddTag("switch_ip", snapshot.System.SwitchIP).
			AddTag("port", fmt.Sprintf("%d", port.Port)).
			AddField("connected", port.Connected).
			AddField("speed", port.Speed).
			AddField("packets_rx", port.PacketsRx).
			AddField("packets_tx", port.PacketsTx).
			AddField("bytes_rx", port.BytesRx).
			AddField("bytes_tx", port.BytesTx).
			SetTime(now)
		if err := w.write.WritePoint(ctx, p); err != nil {
			return fmt.Errorf("store: write port %d point: %w", port.Port, err)
		}
	}

	for port, count := range snapshot.MACsPerPort {
		p := influxdb2.NewPointWithMeasurement(measurementMACs).
			AddTag("switch_ip", snapshot.System.SwitchIP).
			AddTag("port", port).
			AddField("mac_count", count).
			SetTime(now)
		if err := w.write.WritePoint(ctx, p); err != nil {
			return fmt.Errorf("store: write mac count point: %w", err)
		}
	}

	logCount := influxdb2.NewPointWithMeasurement(measurementLogs).
		AddTag("switch_ip", snapshot.System.SwitchIP).
		AddField("log_count", len(snapshot.Logs)).
		SetTime(now)
	if err := w.write.WritePoint(ctx, logCount); err != nil {
		return fmt.Errorf("store: write log count point: %w", err)
	}

	log.WithField("records", len(snapshot.Ports)+len(snapshot.MACsPerPort)+2).Debug("switch snapshot written to influx")
	return nil
}

// WriteRouter persists one router snapshot.
func (w *InfluxWriter) WriteRouter(ctx context.Context, snapshot *collector.RouterSnapshot, routerIP string) error {
	now := time.Now().UTC()

	for _, host := range snapshot.Hosts {
		p := influxdb2.NewPointWithMeasurement(measurementHosts).
			AddTag("router_ip", routerIP).
			AddTag("mac", host.MAC).
			AddTag("interface_type", host.InterfaceType).
			AddField("hostname", host.Hostname).
			AddField("ip", host.IP).
			AddField("active", host.Active).
			AddField("rx_kbytes", host.RxKBytes).
			AddField("tx_kbytes", host.TxKBytes).
			AddField("rate_mbps", host.RateMbps).
			AddField("rssi", host.RSSI).
			SetTime(now)
		if err := w.write.WritePoint(ctx, p); err != nil {
			return fmt.Errorf("store: write host %s point: %w", host.MAC, err)
		}
	}

	summary := influxdb2.NewPointWithMeasurement(measurementHostSumm).
		AddTag("router_ip", routerIP).
		AddField("total", snapshot.Summary.Total).
		AddField("active", snapshot.Summary.Active).
		AddField("wireless", snapshot.Summary.Wireless).
		AddField("wired", snapshot.Summary.Wired).
		SetTime(now)

	wan := influxdb2.NewPointWithMeasurement(measurementWAN).
		AddTag("router_ip", routerIP).
		AddTag("interface", snapshot.WAN.InterfaceName).
		AddField("connected", snapshot.WAN.Connected).
		AddField("connection_status", snapshot.WAN.ConnectionStatus).
		AddField("ipv4_address", snapshot.WAN.IPv4Address).
		AddField("uptime_seconds", snapshot.WAN.UptimeSeconds).
		AddField("up_kbps", snapshot.WAN.UpBandwidthKbps).
		AddField("down_kbps", snapshot.WAN.DownBandwidthKbps).
		AddField("up_max_kbps", snapshot.WAN.UpMaxKbps).
		AddField("down_max_kbps", snapshot.WAN.DownMaxKbps).
		SetTime(now)

	if err := w.write.WritePoint(ctx, summary, wan); err != nil {
		return fmt.Errorf("store: write router summary points: %w", err)
	}

	log.WithField("records", len(snapshot.Hosts)+2).Debug("router snapshot written to influx")
	return nil
}
