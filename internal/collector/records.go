// Package collector polls the monitored devices over their HTTP APIs and
// reshapes the raw JSON into the flat records the stores persist. Router
// collectors require an authenticated routerauth session; switch
// collectors require a switchauth token.
package collector

// CPURecord is one CPU utilization sample from the switch.
type CPURecord struct {
	SwitchIP     string
	UsagePercent float64
	// Status is "normal", "warning" (>=70%) or "critical" (>=90%).
	Status string
}

// SystemRecord is one system-info sample from the switch.
type SystemRecord struct {
	SwitchIP      string
	Model         string
	Firmware      string
	Temperature   float64
	UptimeSeconds int64
}

// PortRecord merges one port's link status and traffic counters.
type PortRecord struct {
	Port      int
	Link      string
	State     string
	Speed     string
	Connected bool
	PacketsRx int64
	PacketsTx int64
	BytesRx   int64
	BytesTx   int64
}

// MACRecord is one entry of the switch's MAC address table.
type MACRecord struct {
	VLAN int
	// MAC is normalized to lowercase colon-separated form.
	MAC  string
	Port string
	// Type is "static" or "dynamic".
	Type string
}

// LogRecord is one switch event-log line.
type LogRecord struct {
	Index    int
	Time     string
	Module   string
	Severity string
	Content  string
}

// SwitchSnapshot is everything one switch collection pass produced.
type SwitchSnapshot struct {
	CPU         CPURecord
	System      SystemRecord
	Ports       []PortRecord
	MACs        []MACRecord
	MACsPerPort map[string]int
	Logs        []LogRecord
}

// HostRecord is one LAN client known to the router.
type HostRecord struct {
	MAC             string
	IP              string
	Hostname        string
	InterfaceType   string
	Layer2Interface string
	Active          bool
	RxKBytes        int64
	TxKBytes        int64
	RateMbps        int64
	RSSI            int64
}

// HostSummary aggregates the router's host table.
type HostSummary struct {
	Total    int
	Active   int
	Wireless int
	Wired    int
}

// WANRecord is the router's WAN status and bandwidth sample.
type WANRecord struct {
	ConnectionStatus  string
	AccessStatus      string
	Connected         bool
	InterfaceName     string
	IPv4Address       string
	IPv4Gateway       string
	UptimeSeconds     int64
	UpBandwidthKbps   int64
	DownBandwidthKbps int64
	UpMaxKbps         int64
	DownMaxKbps       int64
}

// RouterSnapshot is everything one router collection pass produced.
type RouterSnapshot struct {
	Hosts   []HostRecord
	Summary HostSummary
	WAN     WANRecord
}
