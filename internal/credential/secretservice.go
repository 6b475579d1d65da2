package credential

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/godbus/dbus/v5"

	"github.com/lamco-admin/wayland-rdp-sub008/internal/rdpwire"
)

const (
	secretsBus            = "org.freedesktop.secrets"
	secretsPath           = dbus.ObjectPath("/org/freedesktop/secrets")
	secretsServiceIface   = "org.freedesktop.Secret.Service"
	secretsItemIface      = "org.freedesktop.Secret.Item"
	secretsCollectionPath = dbus.ObjectPath("/org/freedesktop/secrets/aliases/default")
	secretsSchemaAttr     = "rdp-restore-token"
)

// secret is the (session, parameters, value, content_type) tuple the
// Secret Service API passes values around as.
type secret struct {
	Session     dbus.ObjectPath
	Parameters  []byte
	Value       []byte
	ContentType string
}

// SecretServiceStore persists restore tokens in the desktop keyring via
// org.freedesktop.secrets, reusing the teacher's plain `.Call` D-Bus idiom
// (confirmed by grep: no teacher file ever uses CallWithContext) and the
// bounded-retry connection shape from internal/session's portal/Mutter
// strategies.
type SecretServiceStore struct{}

func NewSecretServiceStore() *SecretServiceStore { return &SecretServiceStore{} }

func (s *SecretServiceStore) connect(ctx context.Context) (*dbus.Conn, dbus.ObjectPath, error) {
	var conn *dbus.Conn
	var sessionPath dbus.ObjectPath
	err := retry.Do(
		func() error {
			c, err := dbus.ConnectSessionBus()
			if err != nil {
				return err
			}
			svc := c.Object(secretsBus, secretsPath)
			var result dbus.Variant
			var sp dbus.ObjectPath
			if err := svc.Call(secretsServiceIface+".OpenSession", 0, "plain", dbus.MakeVariant("")).Store(&result, &sp); err != nil {
				c.Close()
				return err
			}
			conn = c
			sessionPath = sp
			return nil
		},
		retry.Context(ctx), retry.Attempts(10), retry.Delay(200*time.Millisecond), retry.MaxDelay(2*time.Second),
	)
	if err != nil {
		return nil, "", rdpwire.Wrap(rdpwire.ErrHostUnavailable, "secretservice.connect", err)
	}
	return conn, sessionPath, nil
}

func (s *SecretServiceStore) Load(ctx context.Context, compositorIdentity, profileID string) (string, bool, error) {
	conn, sessionPath, err := s.connect(ctx)
	if err != nil {
		return "", false, err
	}
	defer conn.Close()

	collection := conn.Object(secretsBus, secretsCollectionPath)
	attrs := map[string]string{
		"schema":              secretsSchemaAttr,
		"compositor_identity": compositorIdentity,
		"profile_id":          profileID,
	}
	var items []dbus.ObjectPath
	var locked []dbus.ObjectPath
	if err := collection.Call("org.freedesktop.Secret.Collection.SearchItems", 0, attrs).Store(&items, &locked); err != nil {
		return "", false, rdpwire.Wrap(rdpwire.ErrHostUnavailable, "secretservice.SearchItems", err)
	}
	if len(items) == 0 {
		return "", false, nil
	}

	var secrets map[dbus.ObjectPath]secret
	svc := conn.Object(secretsBus, secretsPath)
	if err := svc.Call(secretsServiceIface+".GetSecrets", 0, items, sessionPath).Store(&secrets); err != nil {
		return "", false, rdpwire.Wrap(rdpwire.ErrHostUnavailable, "secretservice.GetSecrets", err)
	}
	sec, ok := secrets[items[0]]
	if !ok {
		return "", false, nil
	}
	return string(sec.Value), true, nil
}

func (s *SecretServiceStore) Save(ctx context.Context, compositorIdentity, profileID, token string) error {
	conn, sessionPath, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	collection := conn.Object(secretsBus, secretsCollectionPath)
	props := map[string]dbus.Variant{
		"org.freedesktop.Secret.Item.Label": dbus.MakeVariant(fmt.Sprintf("RDP restore token (%s)", compositorIdentity)),
		"org.freedesktop.Secret.Item.Attributes": dbus.MakeVariant(map[string]string{
			"schema":              secretsSchemaAttr,
			"compositor_identity": compositorIdentity,
			"profile_id":          profileID,
		}),
	}
	sec := secret{Session: sessionPath, Parameters: nil, Value: []byte(token), ContentType: "text/plain"}

	var itemPath dbus.ObjectPath
	var promptPath dbus.ObjectPath
	if err := collection.Call("org.freedesktop.Secret.Collection.CreateItem", 0, props, sec, true).Store(&itemPath, &promptPath); err != nil {
		return rdpwire.Wrap(rdpwire.ErrHostUnavailable, "secretservice.CreateItem", err)
	}
	return nil
}
