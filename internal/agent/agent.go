// Package agent serves the index to SNMP managers over UDP.
//
// Requests are decoded and responses encoded with gosnmp's packet codec.
// SNMPv1 and SNMPv2c are supported; the community string is the only
// access control. Every value is answered as a Gauge32.
//
// Any query error (a stale feed) fails the whole request with genErr so
// that a manager never sees a partial or outdated table.
package agent

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/xtxerr/statbridge/config"
	"github.com/xtxerr/statbridge/internal/errors"
	"github.com/xtxerr/statbridge/internal/index"
	"github.com/xtxerr/statbridge/internal/logging"
	"github.com/xtxerr/statbridge/internal/oid"
)

// Querier answers liveness-gated lookups. *query.Handler implements it.
type Querier interface {
	Get(id oid.OID) (int64, bool, error)
	GetNext(id oid.OID) (index.Entry, bool, error)
}

// Config holds responder settings.
type Config struct {
	Listen         string
	Community      string
	MaxRepetitions int
	MaxPacketSize  int
	// Served restricts answers to one subtree. Nil serves the whole index.
	Served oid.OID
}

// Agent is the UDP responder.
type Agent struct {
	cfg   Config
	q     Querier
	codec *gosnmp.GoSNMP
	log   *slog.Logger

	mu   sync.Mutex
	conn net.PacketConn

	wg sync.WaitGroup
}

// New creates a responder. Call Listen, then Serve.
func New(cfg Config, q Querier) *Agent {
	if cfg.Listen == "" {
		cfg.Listen = config.DefaultAgentListen
	}
	if cfg.Community == "" {
		cfg.Community = config.DefaultCommunity
	}
	if cfg.MaxRepetitions <= 0 {
		cfg.MaxRepetitions = config.DefaultMaxRepetitions
	}
	if cfg.MaxPacketSize <= 0 {
		cfg.MaxPacketSize = config.DefaultMaxPacketSize
	}
	return &Agent{
		cfg:   cfg,
		q:     q,
		codec: &gosnmp.GoSNMP{Version: gosnmp.Version2c},
		log:   logging.Component("agent"),
	}
}

// Listen binds the UDP socket.
func (a *Agent) Listen() error {
	conn, err := net.ListenPacket("udp", a.cfg.Listen)
	if err != nil {
		return errors.Wrapf(err, "listen %s", a.cfg.Listen)
	}
	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()
	a.log.Info("listening", "address", conn.LocalAddr().String())
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (a *Agent) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return nil
	}
	return a.conn.LocalAddr()
}

// Serve answers requests until ctx is done or Close is called.
func (a *Agent) Serve(ctx context.Context) error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		if err := a.Listen(); err != nil {
			return err
		}
		a.mu.Lock()
		conn = a.conn
		a.mu.Unlock()
	}

	a.wg.Add(1)
	defer a.wg.Done()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	buf := make([]byte, a.cfg.MaxPacketSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			a.log.Error("read error", "error", err)
			continue
		}

		resp, err := a.HandleBytes(ctx, buf[:n], addr)
		if err != nil {
			a.log.Debug("request dropped", "remote", addr.String(), "error", err)
			continue
		}
		if resp == nil {
			continue
		}
		if _, err := conn.WriteTo(resp, addr); err != nil {
			a.log.Warn("write response", "remote", addr.String(), "error", err)
		}
	}
}

// Close stops Serve and releases the socket.
func (a *Agent) Close() error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return nil
	}
	err := conn.Close()
	a.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// HandleBytes decodes one datagram and returns the encoded response. A nil
// response with nil error means the request is silently ignored.
func (a *Agent) HandleBytes(ctx context.Context, packet []byte, from net.Addr) ([]byte, error) {
	req, err := a.codec.SnmpDecodePacket(packet)
	if err != nil {
		return nil, errors.Wrap(err, "decode")
	}

	if from != nil {
		ctx = logging.ContextWithRemote(ctx, from.String())
	}
	ctx = logging.ContextWithRequestID(ctx, req.RequestID)

	resp := a.Handle(ctx, req)
	if resp == nil {
		return nil, nil
	}

	out, err := resp.MarshalMsg()
	if err != nil {
		return nil, errors.Wrap(err, "encode")
	}
	if len(out) > a.cfg.MaxPacketSize {
		return a.tooBig(req)
	}
	return out, nil
}

// Handle answers a decoded request. It returns nil for requests that get no
// response: wrong community, unsupported version or PDU type.
func (a *Agent) Handle(ctx context.Context, req *gosnmp.SnmpPacket) *gosnmp.SnmpPacket {
	log := logging.WithContext(ctx).With("component", "agent")

	if req.Version != gosnmp.Version1 && req.Version != gosnmp.Version2c {
		log.Debug("unsupported version", "version", req.Version)
		return nil
	}
	if req.Community != a.cfg.Community {
		log.Debug("community mismatch")
		return nil
	}

	start := time.Now()
	var (
		vars []gosnmp.SnmpPDU
		err  error
	)

	switch req.PDUType {
	case gosnmp.GetRequest:
		vars, err = a.get(req)
	case gosnmp.GetNextRequest:
		vars, err = a.getNext(req)
	case gosnmp.GetBulkRequest:
		if req.Version == gosnmp.Version1 {
			log.Debug("getbulk over v1 ignored")
			return nil
		}
		vars, err = a.getBulk(req)
	case gosnmp.SetRequest:
		status := errors.ErrorToStatus(errors.ErrReadOnly)
		if req.Version == gosnmp.Version1 {
			status = errors.StatusReadOnly
		}
		return a.errorResponse(req, gosnmp.SNMPError(status), 1)
	default:
		log.Debug("unsupported pdu", "type", req.PDUType)
		return nil
	}

	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			return a.errorResponse(req, se.status, se.index)
		}
		log.Warn("request failed", "pdu", req.PDUType, "error", err)
		return a.errorResponse(req, gosnmp.SNMPError(errors.ErrorToStatus(err)), 1)
	}

	log.Debug("request served",
		"pdu", req.PDUType,
		"varbinds", len(vars),
		"elapsed", time.Since(start))
	return a.response(req, vars)
}

// =============================================================================
// PDU handlers
// =============================================================================

// statusError carries a v1 error status raised by a single varbind.
type statusError struct {
	status gosnmp.SNMPError
	index  int
}

func (e *statusError) Error() string {
	return errors.StatusName(uint8(e.status))
}

func (a *Agent) get(req *gosnmp.SnmpPacket) ([]gosnmp.SnmpPDU, error) {
	out := make([]gosnmp.SnmpPDU, 0, len(req.Variables))
	for i, v := range req.Variables {
		id, err := oid.Parse(v.Name)
		if err != nil || !a.served(id) {
			if err := a.absent(req, i); err != nil {
				return nil, err
			}
			out = append(out, gosnmp.SnmpPDU{Name: v.Name, Type: gosnmp.NoSuchObject})
			continue
		}

		value, found, err := a.q.Get(id)
		if err != nil {
			return nil, err
		}
		if !found {
			if err := a.absent(req, i); err != nil {
				return nil, err
			}
			out = append(out, gosnmp.SnmpPDU{Name: v.Name, Type: gosnmp.NoSuchObject})
			continue
		}
		out = append(out, gauge(id, value))
	}
	return out, nil
}

func (a *Agent) getNext(req *gosnmp.SnmpPacket) ([]gosnmp.SnmpPDU, error) {
	out := make([]gosnmp.SnmpPDU, 0, len(req.Variables))
	for i, v := range req.Variables {
		id, err := oid.Parse(v.Name)
		if err != nil {
			// Only the empty OID fails to parse; it precedes everything.
			id = oid.OID{}
		}

		pdu, end, err := a.next(id)
		if err != nil {
			return nil, err
		}
		if end {
			if req.Version == gosnmp.Version1 {
				return nil, &statusError{status: gosnmp.NoSuchName, index: i + 1}
			}
			out = append(out, gosnmp.SnmpPDU{Name: v.Name, Type: gosnmp.EndOfMibView})
			continue
		}
		out = append(out, pdu)
	}
	return out, nil
}

func (a *Agent) getBulk(req *gosnmp.SnmpPacket) ([]gosnmp.SnmpPDU, error) {
	nonRepeaters := int(req.NonRepeaters)
	if nonRepeaters > len(req.Variables) {
		nonRepeaters = len(req.Variables)
	}
	maxRep := int(req.MaxRepetitions)
	if maxRep > a.cfg.MaxRepetitions {
		maxRep = a.cfg.MaxRepetitions
	}

	ids := make([]oid.OID, len(req.Variables))
	for i, v := range req.Variables {
		id, err := oid.Parse(v.Name)
		if err != nil {
			id = oid.OID{}
		}
		ids[i] = id
	}

	var out []gosnmp.SnmpPDU
	for i := 0; i < nonRepeaters; i++ {
		pdu, end, err := a.next(ids[i])
		if err != nil {
			return nil, err
		}
		if end {
			pdu = gosnmp.SnmpPDU{Name: ids[i].Dotted(), Type: gosnmp.EndOfMibView}
		}
		out = append(out, pdu)
	}

	cursors := ids[nonRepeaters:]
	ended := make([]bool, len(cursors))
	for rep := 0; rep < maxRep && len(cursors) > 0; rep++ {
		allEnded := true
		for j := range cursors {
			if ended[j] {
				out = append(out, gosnmp.SnmpPDU{Name: cursors[j].Dotted(), Type: gosnmp.EndOfMibView})
				continue
			}
			pdu, end, err := a.next(cursors[j])
			if err != nil {
				return nil, err
			}
			if end {
				ended[j] = true
				out = append(out, gosnmp.SnmpPDU{Name: cursors[j].Dotted(), Type: gosnmp.EndOfMibView})
				continue
			}
			allEnded = false
			cursors[j] = oid.MustParse(pdu.Name)
			out = append(out, pdu)
		}
		if allEnded {
			break
		}
	}
	return out, nil
}

// next returns the successor of id within the served subtree. end is true
// when there is none.
func (a *Agent) next(id oid.OID) (gosnmp.SnmpPDU, bool, error) {
	root := a.cfg.Served
	cur := id
	for {
		e, found, err := a.q.GetNext(cur)
		if err != nil {
			return gosnmp.SnmpPDU{}, false, err
		}
		if !found {
			return gosnmp.SnmpPDU{}, true, nil
		}
		if len(root) > 0 && !oid.Contains(root, e.OID) {
			if oid.Compare(e.OID, root) < 0 {
				// Still before the served subtree.
				cur = e.OID
				continue
			}
			return gosnmp.SnmpPDU{}, true, nil
		}
		return gauge(e.OID, e.Value), false, nil
	}
}

// absent reports a missing object. v2c answers per varbind, so it returns
// nil; v1 fails the request with noSuchName.
func (a *Agent) absent(req *gosnmp.SnmpPacket, i int) error {
	if req.Version == gosnmp.Version1 {
		return &statusError{status: gosnmp.NoSuchName, index: i + 1}
	}
	return nil
}

func (a *Agent) served(id oid.OID) bool {
	return len(a.cfg.Served) == 0 || oid.Contains(a.cfg.Served, id)
}

// =============================================================================
// Responses
// =============================================================================

func gauge(id oid.OID, value int64) gosnmp.SnmpPDU {
	return gosnmp.SnmpPDU{
		Name:  id.Dotted(),
		Type:  gosnmp.Gauge32,
		Value: uint32(value),
	}
}

func (a *Agent) response(req *gosnmp.SnmpPacket, vars []gosnmp.SnmpPDU) *gosnmp.SnmpPacket {
	return &gosnmp.SnmpPacket{
		Version:   req.Version,
		Community: req.Community,
		PDUType:   gosnmp.GetResponse,
		RequestID: req.RequestID,
		Error:     gosnmp.NoError,
		Variables: vars,
	}
}

// errorResponse echoes the request varbinds with an error status.
func (a *Agent) errorResponse(req *gosnmp.SnmpPacket, status gosnmp.SNMPError, index int) *gosnmp.SnmpPacket {
	vars := make([]gosnmp.SnmpPDU, len(req.Variables))
	for i, v := range req.Variables {
		vars[i] = gosnmp.SnmpPDU{Name: v.Name, Type: gosnmp.Null}
	}
	resp := a.response(req, vars)
	resp.Error = status
	resp.ErrorIndex = uint8(index)
	return resp
}

func (a *Agent) tooBig(req *gosnmp.SnmpPacket) ([]byte, error) {
	resp := a.response(req, nil)
	resp.Error = gosnmp.TooBig
	out, err := resp.MarshalMsg()
	if err != nil {
		return nil, errors.Wrap(err, "encode")
	}
	return out, nil
}
