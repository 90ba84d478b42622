// Package quicwire holds the QUIC plumbing shared by the quic backend and
// the server: TLS configs, tuned quic.Configs and listen/dial helpers.
package quicwire

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"log/slog"
	"math/big"
	"net"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/bytehaul/bytehaul/pkg/protocol"
)

// ServerTLSConfig returns a TLS configuration for the QUIC listener.
// Uses a self-signed certificate for now (insecure).
func ServerTLSConfig() (*tls.Config, error) {
	cert, err := generateSelfSignedCert()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{protocol.ALPNProtocol},
	}, nil
}

// ClientTLSConfig returns a TLS configuration for QUIC dialing.
// Uses InsecureSkipVerify for now (insecure).
func ClientTLSConfig() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{protocol.ALPNProtocol},
	}
}

// DefaultQUICConfig returns the QUIC tuning used on both ends.
func DefaultQUICConfig() *quic.Config {
	return &quic.Config{
		KeepAlivePeriod:         10 * time.Second,
		MaxIdleTimeout:          30 * time.Second,
		DisablePathMTUDiscovery: true,
		MaxIncomingStreams:      100,
	}
}

// Listen creates a QUIC listener on the given PacketConn.
func Listen(udpConn net.PacketConn, logger *slog.Logger) (*quic.Listener, error) {
	tlsConfig, err := ServerTLSConfig()
	if err != nil {
		return nil, err
	}

	listener, err := quic.Listen(udpConn, tlsConfig, DefaultQUICConfig())
	if err != nil {
		logger.Error("QUIC listen failed", "error", err, "local_addr", udpConn.LocalAddr())
		return nil, err
	}

	logger.Info("QUIC listener created", "local_addr", udpConn.LocalAddr())
	return listener, nil
}

// Dial creates a QUIC connection to the remote address.
func Dial(ctx context.Context, addr string, logger *slog.Logger) (*quic.Conn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	udpConn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, err
	}

	conn, err := quic.Dial(ctx, udpConn, udpAddr, ClientTLSConfig(), DefaultQUICConfig())
	if err != nil {
		udpConn.Close()
		logger.Error("QUIC dial failed", "error", err, "remote_addr", addr)
		return nil, err
	}

	logger.Debug("QUIC connection established", "remote_addr", addr)
	return conn, nil
}

// generateSelfSignedCert generates a self-signed certificate for the listener.
func generateSelfSignedCert() (tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"bytehaul"},
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}

	return tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  priv,
	}, nil
}
