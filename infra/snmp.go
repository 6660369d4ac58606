package infra

import (
	"strconv"
	"time"

	"github.com/HavvokLab/solax-cloud/config"
	"github.com/HavvokLab/solax-cloud/pkg/logger"
	"github.com/gosnmp/gosnmp"
	"github.com/rs/zerolog"
)

type TrapType string

func (t TrapType) String() string {
	return string(t)
}

const (
	TrapTypeStaleAlarm TrapType = "stale_alarm"
	TrapTypeClearAlarm TrapType = "clear_alarm"
)

const (
	CriticalSeverity      = "6"
	MajorSeverity         = "5"
	MinorSeverity         = "4"
	WarningSeverity       = "3"
	IndeterminateSeverity = "2"
	ClearSeverity         = "0"
)

const (
	trapEnterprise = "1.3.6.1.4.1.30378.1.1"
	trapVarPrefix  = "1.3.6.1.4.1.30378.2."
	trapClass      = "SolaxCloudInverter"
)

// Trap is one alarm notification for an inverter.
type Trap struct {
	DeviceName  string
	AlertName   string
	Description string
	Severity    string
	UpdatedAt   time.Time
}

type TrapSender interface {
	SendTrap(trap Trap)
}

// SnmpOrchestrator fans a trap out to every configured receiver.
type SnmpOrchestrator struct {
	clients  []*SnmpClient
	trapType TrapType
	logger   zerolog.Logger
}

func NewSnmpOrchestrator(trapType TrapType, snmpList []config.SnmpConfig) (*SnmpOrchestrator, error) {
	clients := make([]*SnmpClient, 0, len(snmpList))
	for _, c := range snmpList {
		client, err := NewSnmpClient(c)
		if err != nil {
			for _, opened := range clients {
				opened.Close()
			}
			return nil, err
		}

		clients = append(clients, client)
	}

	return &SnmpOrchestrator{clients: clients, trapType: trapType, logger: logger.New("snmp.log")}, nil
}

func (s *SnmpOrchestrator) SendTrap(trap Trap) {
	for _, client := range s.clients {
		err := client.SendTrap(trap)
		event := s.logger.Info()
		message := "SnmpOrchestrator::SendTrap() - trap sent"
		if err != nil {
			event = s.logger.Error().Err(err)
			message = "SnmpOrchestrator::SendTrap() - failed to send trap"
		}

		event.
			Str("agent_host", client.agentHost).
			Str("target_host", client.client.Target).
			Int("target_port", int(client.client.Port)).
			Str("trap_type", s.trapType.String()).
			Str("device_name", trap.DeviceName).
			Str("alert_name", trap.AlertName).
			Str("severity", trap.Severity).
			Msg(message)
	}
}

func (s *SnmpOrchestrator) Close() {
	for _, client := range s.clients {
		client.Close()
	}
}

type SnmpClient struct {
	agentHost string
	client    *gosnmp.GoSNMP
}

func NewSnmpClient(conf config.SnmpConfig) (*SnmpClient, error) {
	port := conf.TargetPort
	if port == 0 {
		port = 162
	}

	client := &gosnmp.GoSNMP{
		Target:             conf.TargetHost,
		Port:               uint16(port),
		Transport:          "udp",
		Community:          "public",
		Version:            gosnmp.Version1,
		Timeout:            10 * time.Second,
		Retries:            3,
		ExponentialTimeout: true,
		MaxOids:            gosnmp.MaxOids,
	}

	if err := client.Connect(); err != nil {
		return nil, err
	}

	return &SnmpClient{agentHost: conf.AgentHost, client: client}, nil
}

// TrapVariables lays out the varbinds in receiver order: class, device,
// alert, description, severity, last update.
func TrapVariables(trap Trap) []gosnmp.SnmpPDU {
	values := []string{
		trapClass,
		trap.DeviceName,
		trap.AlertName,
		trap.Description,
		trap.Severity,
		trap.UpdatedAt.Format(time.RFC3339),
	}

	pdus := make([]gosnmp.SnmpPDU, 0, len(values))
	for i, value := range values {
		pdus = append(pdus, gosnmp.SnmpPDU{
			Name:  trapVarPrefix + strconv.Itoa(i+1),
			Type:  gosnmp.OctetString,
			Value: value,
		})
	}

	return pdus
}

func (c *SnmpClient) SendTrap(trap Trap) error {
	_, err := c.client.SendTrap(gosnmp.SnmpTrap{
		Enterprise:   trapEnterprise,
		AgentAddress: c.agentHost,
		GenericTrap:  6,
		SpecificTrap: 1,
		Variables:    TrapVariables(trap),
	})

	return err
}

func (c *SnmpClient) Close() {
	if c.client.Conn != nil {
		_ = c.client.Conn.Close()
	}
}
