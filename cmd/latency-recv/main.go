// Minimal WebRTC receiver demonstrating the latency-controlled audio
// pipeline. It answers a single remote offer, routes every inbound audio
// stream through a latency session, and periodically prints the session's
// latency stats and scaling factor.
//
// Signaling is the usual copy/paste dance: paste a base64 SDP offer on
// stdin, send the printed base64 answer back to the remote peer.
//
// Usage:
//
//	go run ./cmd/latency-recv < offer.b64
package main

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"github.com/Hassall/roc-toolkit/pkg/latency"
	latencyrtc "github.com/Hassall/roc-toolkit/pkg/latency/interceptor"
)

const (
	sampleRate   = 48000
	frameSamples = 480 // 10ms
)

func main() {
	logrus.SetLevel(logrus.InfoLevel)

	spec := latency.SampleSpec{Rate: sampleRate, Channels: 1, Format: latency.FormatS16}
	config := latency.DefaultSessionConfig(spec, spec)

	factory, err := latencyrtc.NewReceiverInterceptorFactory(config,
		latencyrtc.WithTargetLatency(200*time.Millisecond),
		latencyrtc.WithProfile(latency.ProfileGradual),
	)
	if err != nil {
		logrus.WithError(err).Fatal("cannot create interceptor factory")
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		logrus.WithError(err).Fatal("cannot register codecs")
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		logrus.WithError(err).Fatal("cannot register default interceptors")
	}
	registry.Add(factory)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
	)

	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		logrus.WithError(err).Fatal("cannot create peer connection")
	}
	defer pc.Close()

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		logrus.WithFields(logrus.Fields{
			"ssrc":  track.SSRC(),
			"codec": track.Codec().MimeType,
		}).Info("got remote track")

		// Drain the track; the interceptor chain observes every packet.
		for {
			if _, _, err := track.ReadRTP(); err != nil {
				return
			}
		}
	})

	offer := webrtc.SessionDescription{}
	decodeDescription(readStdinLine(), &offer)
	if err := pc.SetRemoteDescription(offer); err != nil {
		logrus.WithError(err).Fatal("cannot apply remote offer")
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		logrus.WithError(err).Fatal("cannot create answer")
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		logrus.WithError(err).Fatal("cannot apply local answer")
	}
	<-gatherComplete

	fmt.Println(encodeDescription(pc.LocalDescription()))

	// Consume frames and tick the monitors at the frame cadence.
	frame := latency.Frame{Samples: make([]int16, frameSamples)}
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	lastReport := time.Now()
	for range ticker.C {
		for _, ri := range factory.Interceptors() {
			for ssrc, sess := range ri.Sessions() {
				if !sess.IsAlive() {
					continue
				}
				if !sess.ReadFrame(&frame) || !sess.Tick() {
					logrus.WithField("ssrc", ssrc).Warn("session torn down")
					continue
				}
				if time.Since(lastReport) >= 5*time.Second {
					lastReport = time.Now()
					stats := sess.Stats()
					logrus.WithFields(logrus.Fields{
						"ssrc":  ssrc,
						"niq":   stats.NiqLatency,
						"e2e":   stats.E2eLatency,
						"coeff": fmt.Sprintf("%.6f", sess.Monitor().FreqCoeff()),
					}).Info("session stats")
				}
			}
		}
	}
}

func readStdinLine() string {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			return line
		}
	}
	logrus.Fatal("no offer on stdin")
	return ""
}

func decodeDescription(b64 string, desc *webrtc.SessionDescription) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		logrus.WithError(err).Fatal("invalid base64 offer")
	}
	if err := json.Unmarshal(raw, desc); err != nil {
		logrus.WithError(err).Fatal("invalid offer JSON")
	}
}

func encodeDescription(desc *webrtc.SessionDescription) string {
	raw, err := json.Marshal(desc)
	if err != nil {
		logrus.WithError(err).Fatal("cannot marshal answer")
	}
	return base64.StdEncoding.EncodeToString(raw)
}
