// Soak test runner for the receiver latency control loop.
//
// This tool simulates a sender whose clock drifts relative to the receiver,
// with bounded network jitter, and runs a full session (queue, depacketizer,
// resampler, latency monitor) against a mock clock as fast as the CPU
// allows. It verifies that the frequency estimator keeps the queue depth
// near the target and that the scaling factor stays bounded over long runs.
//
// Usage:
//
//	go run ./cmd/latency-soak -duration 1h -drift-ppm 200
//	go run ./cmd/latency-soak -duration 24h -jitter 20ms
//
// Exposes a pprof endpoint at :6060 for live profiling:
//
//	curl http://localhost:6060/debug/pprof/heap > heap.pprof
package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // Enable pprof endpoints
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Hassall/roc-toolkit/pkg/latency"
	"github.com/Hassall/roc-toolkit/internal"
)

const (
	sampleRate    = 48000
	packetSamples = 960 // 20ms packets
	frameSamples  = 480 // 10ms frames
	statusEvery   = 5 * time.Minute
)

// SoakResult contains the results of a soak run.
type SoakResult struct {
	SimulatedTime    time.Duration
	TotalPackets     int
	TotalFrames      int
	FinalNiqLatency  time.Duration
	FinalFreqCoeff   float64
	MaxAbsCoeffDelta float64
	Status           string
}

// pendingPacket is a generated packet waiting out its simulated network
// delay.
type pendingPacket struct {
	pkt       *latency.Packet
	deliverAt time.Time
}

func main() {
	duration := flag.Duration("duration", time.Hour, "Simulated test duration (e.g., 1h, 24h)")
	driftPPM := flag.Float64("drift-ppm", 100, "Sender clock drift in parts per million")
	jitter := flag.Duration("jitter", 5*time.Millisecond, "Maximum network jitter")
	target := flag.Duration("target", 200*time.Millisecond, "Target latency")
	profile := flag.String("profile", "gradual", "Estimator profile: responsive or gradual")
	seed := flag.Int64("seed", 1, "Jitter random seed")
	pprofPort := flag.Int("pprof-port", 6060, "Port for pprof HTTP server")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn")
	flag.Parse()

	if lvl, err := logrus.ParseLevel(*logLevel); err == nil {
		logrus.SetLevel(lvl)
	}

	fmt.Printf("Latency Soak Test Runner\n")
	fmt.Printf("========================\n")
	fmt.Printf("Duration:  %v (simulated)\n", *duration)
	fmt.Printf("Drift:     %.1f ppm\n", *driftPPM)
	fmt.Printf("Jitter:    %v\n", *jitter)
	fmt.Printf("Target:    %v\n", *target)
	fmt.Printf("Pprof:     http://localhost:%d/debug/pprof/\n", *pprofPort)
	fmt.Printf("\n")

	go func() {
		addr := fmt.Sprintf(":%d", *pprofPort)
		if err := http.ListenAndServe(addr, nil); err != nil {
			fmt.Printf("Warning: pprof server failed: %v\n", err)
		}
	}()

	result := runSoak(*duration, *driftPPM, *jitter, *target, *profile, *seed)
	printSummary(result)

	if result.Status == "PASS" {
		os.Exit(0)
	}
	os.Exit(1)
}

func runSoak(duration time.Duration, driftPPM float64, jitter, target time.Duration, profile string, seed int64) SoakResult {
	spec := latency.SampleSpec{Rate: sampleRate, Channels: 1, Format: latency.FormatS16}

	config := latency.DefaultSessionConfig(spec, spec)
	config.TargetLatency = target
	if profile == "responsive" {
		config.Monitor.FEProfile = latency.ProfileResponsive
	}

	clock := internal.NewMockClock(time.Time{})
	sess, err := latency.NewSession(config, clock)
	if err != nil {
		fmt.Printf("ERROR: cannot create session: %v\n", err)
		return SoakResult{Status: "FAIL"}
	}

	rng := rand.New(rand.NewSource(seed))
	result := SoakResult{Status: "PASS"}

	// The sender's clock runs at rate*(1+drift); the receiver consumes at
	// the nominal rate. The estimator has to absorb the difference.
	senderStep := time.Duration(float64(spec.SamplesToNs(packetSamples)) / (1 + driftPPM/1e6))
	frameStep := spec.SamplesToNs(frameSamples)

	var (
		pending   []pendingPacket
		seq       uint16
		ts        latency.Timestamp
		nextSend  = clock.Now()
		lastState = time.Duration(0)
	)

	payload := make([]byte, packetSamples*2)

	// Prefill the queue up to the target latency before playback starts.
	for spec.SamplesToNs(ts) < target {
		sess.Route(makePacket(seq, ts, payload, clock.Now()))
		seq++
		ts += packetSamples
		result.TotalPackets++
	}

	frame := latency.Frame{Samples: make([]int16, frameSamples)}

	for elapsed := time.Duration(0); elapsed < duration; elapsed += frameStep {
		clock.Advance(frameStep)
		now := clock.Now()

		// Generate sender packets that are due, with random delivery jitter.
		for !nextSend.After(now) {
			delay := time.Duration(rng.Int63n(int64(jitter) + 1))
			pending = append(pending, pendingPacket{
				pkt:       makePacket(seq, ts, payload, nextSend),
				deliverAt: nextSend.Add(delay),
			})
			seq++
			ts += packetSamples
			nextSend = nextSend.Add(senderStep)
		}

		// Deliver packets whose jitter delay has passed.
		kept := pending[:0]
		for _, pp := range pending {
			if pp.deliverAt.After(now) {
				kept = append(kept, pp)
				continue
			}
			sess.Route(pp.pkt)
			result.TotalPackets++
		}
		pending = kept

		// Receiver: one frame, one tick.
		if !sess.ReadFrame(&frame) {
			result.Status = "FAIL"
			break
		}
		result.TotalFrames++

		if !sess.Tick() {
			fmt.Printf("[%v] ERROR: session torn down: latency left the window\n", elapsed)
			result.Status = "FAIL"
			break
		}

		coeff := sess.Monitor().FreqCoeff()
		if math.IsNaN(coeff) || math.IsInf(coeff, 0) {
			fmt.Printf("[%v] ERROR: invalid freq coefficient %v\n", elapsed, coeff)
			result.Status = "FAIL"
			break
		}
		if d := math.Abs(coeff - 1.0); d > result.MaxAbsCoeffDelta {
			result.MaxAbsCoeffDelta = d
		}

		if elapsed-lastState >= statusEvery {
			lastState = elapsed
			stats := sess.Stats()
			fmt.Printf("[%v] niq=%v e2e=%v coeff=%.6f packets=%d\n",
				elapsed, stats.NiqLatency, stats.E2eLatency, coeff, result.TotalPackets)
		}

		result.SimulatedTime = elapsed + frameStep
	}

	if sess.IsAlive() {
		stats := sess.Stats()
		result.FinalNiqLatency = stats.NiqLatency
		result.FinalFreqCoeff = sess.Monitor().FreqCoeff()
	}

	return result
}

func makePacket(seq uint16, ts latency.Timestamp, payload []byte, capture time.Time) *latency.Packet {
	return &latency.Packet{
		Seqnum:          seq,
		SSRC:            0x12345678,
		StreamTimestamp: ts,
		Duration:        packetSamples,
		CaptureTime:     capture,
		Payload:         payload,
	}
}

func printSummary(r SoakResult) {
	fmt.Printf("\nSoak Test Summary\n")
	fmt.Printf("=================\n")
	fmt.Printf("Status:          %s\n", r.Status)
	fmt.Printf("Simulated time:  %v\n", r.SimulatedTime)
	fmt.Printf("Packets:         %d\n", r.TotalPackets)
	fmt.Printf("Frames:          %d\n", r.TotalFrames)
	fmt.Printf("Final niq:       %v\n", r.FinalNiqLatency)
	fmt.Printf("Final coeff:     %.6f\n", r.FinalFreqCoeff)
	fmt.Printf("Max |coeff-1|:   %.6f\n", r.MaxAbsCoeffDelta)
}
