package dialect

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// The translators receive the url with the leading "jdbc:" removed and the
// original letter case preserved. Only the JDBC properties listed in each
// translator are carried over; the rest have no equivalent in the Go driver.

const defaultPostgresHost = "localhost:5432"

// postgresDSN accepts the host form postgresql://host[:port]/db and the
// short forms postgresql:db and postgresql:/, which mean localhost:5432.
func postgresDSN(rest string) (string, error) {
	u, err := url.Parse(rest)
	if err != nil {
		return "", err
	}
	host, path := u.Host, u.Path
	if host == "" {
		host = defaultPostgresHost
		if u.Opaque != "" {
			path = "/" + u.Opaque
		}
	}

	out := &url.URL{Scheme: "postgres", Host: host, Path: path, User: u.User}
	in := u.Query()
	q := url.Values{}
	for key := range in {
		val := in.Get(key)
		switch strings.ToLower(key) {
		case "user":
			q.Set("user", val)
		case "password":
			q.Set("password", val)
		case "sslmode":
			q.Set("sslmode", val)
		case "ssl":
			if val == "true" && in.Get("sslmode") == "" {
				q.Set("sslmode", "require")
			}
		case "currentschema":
			q.Set("search_path", val)
		case "applicationname":
			q.Set("application_name", val)
		case "connecttimeout":
			q.Set("connect_timeout", val)
		}
	}
	out.RawQuery = q.Encode()
	return out.String(), nil
}

func mysqlDSN(rest string) (string, error) {
	u, err := url.Parse(rest)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", errors.New("missing host")
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	if u.Port() == "" {
		cfg.Addr = net.JoinHostPort(u.Hostname(), "3306")
	}
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}

	in := u.Query()
	for key := range in {
		val := in.Get(key)
		switch strings.ToLower(key) {
		case "user":
			cfg.User = val
		case "password":
			cfg.Passwd = val
		case "connecttimeout":
			cfg.Timeout, err = millis(val)
		case "sockettimeout":
			cfg.ReadTimeout, err = millis(val)
		case "usessl":
			if val == "true" {
				cfg.TLSConfig = "true"
			}
		case "sslmode":
			switch strings.ToLower(val) {
			case "disabled":
				cfg.TLSConfig = "false"
			case "preferred":
				cfg.TLSConfig = "preferred"
			case "required", "verify_ca", "verify_identity":
				cfg.TLSConfig = "true"
			}
		}
		if err != nil {
			return "", err
		}
	}
	return cfg.FormatDSN(), nil
}

// sqlServerDSN handles jdbc:sqlserver://host[\instance][:port][;key=value]*.
func sqlServerDSN(rest string) (string, error) {
	const scheme = "sqlserver://"
	if !strings.HasPrefix(strings.ToLower(rest), scheme) {
		return "", errors.New("expected sqlserver://")
	}
	segments := strings.Split(rest[len(scheme):], ";")
	server := segments[0]
	if server == "" {
		return "", errors.New("missing host")
	}

	out := &url.URL{Scheme: "sqlserver"}
	host, instance, _ := strings.Cut(server, `\`)
	if instance != "" {
		port := ""
		if i := strings.LastIndex(instance, ":"); i >= 0 {
			instance, port = instance[:i], instance[i+1:]
		}
		out.Path = "/" + instance
		if port != "" {
			host = net.JoinHostPort(host, port)
		}
	}
	out.Host = host

	q := url.Values{}
	var user, password string
	for _, seg := range segments[1:] {
		key, val, ok := strings.Cut(seg, "=")
		if !ok || key == "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "databasename", "database":
			q.Set("database", val)
		case "user", "username":
			user = val
		case "password":
			password = val
		case "encrypt":
			q.Set("encrypt", val)
		case "trustservercertificate":
			q.Set("TrustServerCertificate", val)
		case "logintimeout":
			q.Set("connection timeout", val)
		case "applicationname":
			q.Set("app name", val)
		case "instancename":
			out.Path = "/" + val
		}
	}
	if user != "" {
		out.User = url.UserPassword(user, password)
	}
	out.RawQuery = q.Encode()
	return out.String(), nil
}

// oracleDSN handles jdbc:oracle:thin:[user/password]@[//]host:port/service
// and the equivalent oci form, producing godror's logfmt parameters.
func oracleDSN(rest string) (string, error) {
	body := rest[len("oracle:"):]
	_, body, ok := strings.Cut(body, ":")
	if !ok {
		return "", errors.New("missing driver type (thin or oci)")
	}

	creds, connect := "", body
	if i := strings.LastIndex(body, "@"); i >= 0 {
		creds, connect = body[:i], body[i+1:]
	}
	connect = strings.TrimPrefix(connect, "//")
	if connect == "" {
		return "", errors.New("missing connect string")
	}

	var b strings.Builder
	if creds != "" {
		user, password, _ := strings.Cut(creds, "/")
		b.WriteString("user=" + strconv.Quote(user) + " ")
		if password != "" {
			b.WriteString("password=" + strconv.Quote(password) + " ")
		}
	}
	b.WriteString("connectString=" + strconv.Quote(connect))
	return b.String(), nil
}

func sqliteDSN(rest string) (string, error) {
	path := rest[len("sqlite:"):]
	if path == "" {
		return "", errors.New("missing database path")
	}
	return path, nil
}

func passthroughDSN(rest string) (string, error) {
	return rest, nil
}

func millis(val string) (time.Duration, error) {
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Millisecond, nil
}
