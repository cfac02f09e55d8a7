package inference

import (
    "bufio"
    "context"
    "net"
    "strconv"
    "strings"
    "testing"
    "time"

    "SpectreGate/internal/domain/models"
    "SpectreGate/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
    t.Helper()
    l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
    if err != nil {
        t.Fatalf("logger: %v", err)
    }
    return l
}

// echoStub accepts one connection and answers each request line by echoing
// request fields back into the matching response fields.
func echoStub(t *testing.T) net.Listener {
    t.Helper()
    ln, err := net.Listen("tcp", "127.0.0.1:0")
    if err != nil {
        t.Fatalf("listen: %v", err)
    }
    go func() {
        conn, err := ln.Accept()
        if err != nil {
            return
        }
        defer conn.Close()
        r := bufio.NewReader(conn)
        for {
            line, err := r.ReadString('\n')
            if err != nil {
                return
            }
            f, perr := ParseLine(strings.TrimSpace(line))
            if perr != nil {
                continue
            }
            conf := strconv.FormatFloat(f.Float("bid", 0)/10000, 'g', -1, 64)
            resp := `{"regime":"TRENDING","conf":` + conf +
                `,"reject":false,"xgb_pass":true,"xgb_prob":0.75,"xgb_label":"PASS"}` + "\n"
            if _, err := conn.Write([]byte(resp)); err != nil {
                return
            }
        }
    }()
    return ln
}

func testBar() *models.BarSnapshot {
    return &models.BarSnapshot{
        Symbol:    "NQ 12-25",
        Time:      time.Date(2025, 6, 2, 9, 31, 0, 0, time.UTC),
        Open:      18100.25,
        High:      18110.5,
        Low:       18095.75,
        Close:     18108.0,
        Volume:    1543,
        Bid:       18107.75,
        Ask:       18108.25,
        Index:     120,
        FirstTick: true,
    }
}

func TestExchangeRoundTrip(t *testing.T) {
    ln := echoStub(t)
    defer ln.Close()

    link := NewLink(ln.Addr().String(), 2*time.Second, testLogger(t))
    defer link.Close()

    link.ConnectIfNeeded(context.Background())
    if !link.IsConnected() {
        t.Fatalf("expected connected")
    }

    bar := testBar()
    req := BuildRequest(bar, time.Now())
    if !strings.HasSuffix(req, "\n") {
        t.Fatalf("request must be newline terminated")
    }

    var line string
    var ok bool
    // the stub answers promptly, but the read budget is per-attempt
    for i := 0; i < 20 && !ok; i++ {
        line, ok = link.Exchange(req)
    }
    if !ok {
        t.Fatalf("no response line")
    }

    next, updated := ApplyResponse(line, models.InitialInferenceState(), false)
    if !updated {
        t.Fatalf("expected regime update from %q", line)
    }
    if next.Regime != models.RegimeTrending {
        t.Fatalf("unexpected regime %q", next.Regime)
    }
    // conf was echoed from the request's bid with the stub's own formatting;
    // the extractor must read it back exactly
    want := bar.Bid / 10000
    if next.Confidence != want {
        t.Fatalf("conf round-trip mismatch: got %v want %v", next.Confidence, want)
    }
    if next.Reject {
        t.Fatalf("unexpected reject")
    }
    if !next.SecondaryPass || next.SecondaryProb != 0.75 {
        t.Fatalf("unexpected secondary %+v", next)
    }
}

func TestExchangeNoDataReturnsImmediately(t *testing.T) {
    ln, err := net.Listen("tcp", "127.0.0.1:0")
    if err != nil {
        t.Fatalf("listen: %v", err)
    }
    defer ln.Close()
    go func() {
        conn, err := ln.Accept()
        if err != nil {
            return
        }
        // swallow requests, never answer
        buf := make([]byte, 1024)
        for {
            if _, err := conn.Read(buf); err != nil {
                return
            }
        }
    }()

    link := NewLink(ln.Addr().String(), 50*time.Millisecond, testLogger(t))
    defer link.Close()
    link.ConnectIfNeeded(context.Background())

    start := time.Now()
    if _, ok := link.Exchange("{}\n"); ok {
        t.Fatalf("expected no response")
    }
    if elapsed := time.Since(start); elapsed > time.Second {
        t.Fatalf("exchange blocked for %v", elapsed)
    }
    // a silent peer is not a fault; the link must stay connected
    if !link.IsConnected() {
        t.Fatalf("expected link to stay connected")
    }
}

func TestExchangePreservesPartialLine(t *testing.T) {
    ln, err := net.Listen("tcp", "127.0.0.1:0")
    if err != nil {
        t.Fatalf("listen: %v", err)
    }
    defer ln.Close()

    firstHalf := `{"regime":"MEAN_RE`
    secondHalf := "VERTING\",\"conf\":0.9,\"reject\":false}\n"
    go func() {
        conn, err := ln.Accept()
        if err != nil {
            return
        }
        r := bufio.NewReader(conn)
        if _, err := r.ReadString('\n'); err != nil {
            return
        }
        conn.Write([]byte(firstHalf))
        if _, err := r.ReadString('\n'); err != nil {
            return
        }
        conn.Write([]byte(secondHalf))
        // hold the connection open until the test finishes
        r.ReadString('\n')
    }()

    link := NewLink(ln.Addr().String(), 300*time.Millisecond, testLogger(t))
    defer link.Close()
    link.ConnectIfNeeded(context.Background())

    if line, ok := link.Exchange("{}\n"); ok {
        t.Fatalf("first exchange must not yield a line, got %q", line)
    }
    var line string
    var ok bool
    for i := 0; i < 20 && !ok; i++ {
        line, ok = link.Exchange("{}\n")
    }
    if !ok {
        t.Fatalf("expected completed line")
    }
    if line != strings.TrimSpace(firstHalf+secondHalf) {
        t.Fatalf("reassembled line mismatch: %q", line)
    }
}

func TestConnectFailureIsSwallowed(t *testing.T) {
    link := NewLink("127.0.0.1:1", 50*time.Millisecond, testLogger(t))
    link.ConnectIfNeeded(context.Background())
    if link.IsConnected() {
        t.Fatalf("expected disconnected")
    }
    if _, ok := link.Exchange("{}\n"); ok {
        t.Fatalf("exchange without connection must return no data")
    }
}

func TestExchangeDisconnectsOnPeerClose(t *testing.T) {
    ln, err := net.Listen("tcp", "127.0.0.1:0")
    if err != nil {
        t.Fatalf("listen: %v", err)
    }
    defer ln.Close()
    go func() {
        conn, err := ln.Accept()
        if err != nil {
            return
        }
        conn.Close()
    }()

    link := NewLink(ln.Addr().String(), 100*time.Millisecond, testLogger(t))
    link.ConnectIfNeeded(context.Background())

    // peer closed; a write or read will surface the fault and drop the conn
    var ok bool
    for i := 0; i < 20 && link.IsConnected(); i++ {
        _, ok = link.Exchange("{}\n")
        time.Sleep(10 * time.Millisecond)
    }
    if ok {
        t.Fatalf("expected no response from closed peer")
    }
    if link.IsConnected() {
        t.Fatalf("expected link to drop after peer close")
    }
}
