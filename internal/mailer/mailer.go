// Package mailer delivers outbound notifications off the request path.
package mailer

import (
	"context"
	"fmt"
	"strings"
)

type Kind string

const KindOTP Kind = "otp"

// Notification is transport agnostic; transports format it.
type Notification struct {
	Kind            Kind
	To              string
	OTP             string
	TTLMinutes      int
	UserDisplayName string
	PlatformName    string
	// Purpose is login or password_reset.
	Purpose string
}

// Transport delivers one notification. Implementations must honour ctx.
type Transport interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Sender accepts notifications without waiting for delivery.
type Sender interface {
	Submit(ctx context.Context, n Notification) bool
}

func subject(n Notification) string {
	if n.Purpose == "password_reset" {
		return fmt.Sprintf("%s password reset code", n.PlatformName)
	}
	return fmt.Sprintf("Your %s verification code", n.PlatformName)
}

func body(n Notification) string {
	var b strings.Builder
	name := n.UserDisplayName
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&b, "Hello %s,\r\n\r\n", name)
	if n.Purpose == "password_reset" {
		b.WriteString("Use the code below to reset your password.\r\n\r\n")
	} else {
		b.WriteString("Use the code below to finish signing in.\r\n\r\n")
	}
	fmt.Fprintf(&b, "    %s\r\n\r\n", n.OTP)
	fmt.Fprintf(&b, "The code expires in %d minutes. If you did not request it, ignore this email.\r\n\r\n", n.TTLMinutes)
	fmt.Fprintf(&b, "%s\r\n", n.PlatformName)
	return b.String()
}
