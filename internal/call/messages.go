package call

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/pion/webrtc/v4"

	"github.com/phuocnguyenncc/mezon-sub000/internal/domain"
)

// OfferPayload carries a compressed session description plus caller metadata.
// The same shape is used for the initial offer and for renegotiation offers.
type OfferPayload struct {
	SDP        string `json:"sdp"`
	CallerName string `json:"callerName,omitempty"`
	Video      bool   `json:"video,omitempty"`
}

type AnswerPayload struct {
	SDP string `json:"sdp"`
}

// StatusPayload informs the peer of the local media toggle state.
type StatusPayload struct {
	CameraEnabled bool `json:"cameraEnabled"`
	MicEnabled    bool `json:"micEnabled"`
}

// CompressSDP deflates a session description and wraps it in base64 so it
// survives JSON transport.
func CompressSDP(sdp string) (string, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write([]byte(sdp)); err != nil {
		return "", fmt.Errorf("compress sdp: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("compress sdp: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecompressSDP reverses CompressSDP.
func DecompressSDP(enc string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return "", fmt.Errorf("decompress sdp: %w", err)
	}
	r, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("decompress sdp: %w", err)
	}
	defer r.Close()
	sdp, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("decompress sdp: %w", err)
	}
	return string(sdp), nil
}

func encodeOffer(desc webrtc.SessionDescription, callerName string, video bool) ([]byte, error) {
	enc, err := CompressSDP(desc.SDP)
	if err != nil {
		return nil, err
	}
	return json.Marshal(OfferPayload{SDP: enc, CallerName: callerName, Video: video})
}

func decodeOffer(payload []byte) (webrtc.SessionDescription, OfferPayload, error) {
	var p OfferPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return webrtc.SessionDescription{}, p, fmt.Errorf("decode offer: %w", err)
	}
	sdp, err := DecompressSDP(p.SDP)
	if err != nil {
		return webrtc.SessionDescription{}, p, err
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}, p, nil
}

func encodeAnswer(desc webrtc.SessionDescription) ([]byte, error) {
	enc, err := CompressSDP(desc.SDP)
	if err != nil {
		return nil, err
	}
	return json.Marshal(AnswerPayload{SDP: enc})
}

func decodeAnswer(payload []byte) (webrtc.SessionDescription, error) {
	var p AnswerPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("decode answer: %w", err)
	}
	sdp, err := DecompressSDP(p.SDP)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}, nil
}

func encodeCandidate(ci webrtc.ICECandidateInit) ([]byte, error) {
	return json.Marshal(ci)
}

func decodeCandidate(payload []byte) (webrtc.ICECandidateInit, error) {
	var ci webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &ci); err != nil {
		return ci, fmt.Errorf("decode candidate: %w", err)
	}
	return ci, nil
}

func encodeStatus(mc domain.MediaControl) ([]byte, error) {
	return json.Marshal(StatusPayload{CameraEnabled: mc.CameraEnabled, MicEnabled: mc.MicEnabled})
}

func decodeStatus(payload []byte) (StatusPayload, error) {
	var p StatusPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return p, fmt.Errorf("decode status: %w", err)
	}
	return p, nil
}
