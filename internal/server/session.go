package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/nimbusline/weatherline/internal/domain"
)

// Protocol response lines. These are wire-compatible with existing clients
// and must not be reworded.
const (
	respRegistered       = "SUCCESS: User registered."
	respDuplicateUser    = "ERROR: Username already exists."
	respBadRegister      = "ERROR: Invalid register format. Expected: REGISTER:username:password:role"
	respBadLogin         = "ERROR: Invalid login format. Expected: LOGIN:username:password"
	respBadCredentials   = "ERROR: Invalid credentials or role."
	respBadSetLocation   = "ERROR: Invalid location format. Expected: SET_LOCATION:location:latitude:longitude"
	respNoData           = "No data available for this location or nearby."
	respServerStopped    = "SERVER_STOPPED"
	respUnknownCommand   = "Unknown command."
	provisionCmdPrefix   = "PROVISION WEATHER DATA:"
	respProvisionOK      = "Weather data provisioned successfully."
	respProvisionErrPref = "Error provisioning weather data: "
)

// session is the per-connection protocol state. It lives exactly as long as
// the connection and is never shared between goroutines.
type session struct {
	srv  *Server
	conn net.Conn
	out  *bufio.Writer

	// Authentication is remembered but, matching long-standing client
	// expectations, never enforced on subsequent commands.
	role domain.Role

	location string
	lat      float64
	lon      float64
}

// handleConn runs one session to completion: read a line, dispatch, write
// the response, until the peer disconnects or STOP is processed.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	start := s.clock.Now()
	s.metrics.ConnectionsActive.Inc()
	defer func() {
		s.metrics.ConnectionsActive.Dec()
		s.metrics.SessionDuration.Observe(s.clock.Since(start).Seconds())
		conn.Close()
	}()

	remote := conn.RemoteAddr().String()
	s.logger.Debug("session opened", "remote", remote)

	sess := &session{srv: s, conn: conn, out: bufio.NewWriter(conn)}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		keepGoing := sess.dispatch(ctx, scanner.Text())
		if err := sess.out.Flush(); err != nil {
			s.logger.Warn("session write failed", "remote", remote, "error", err)
			return
		}
		if !keepGoing {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("session read failed", "remote", remote, "error", err)
	}
	s.logger.Debug("session closed", "remote", remote)
}

// dispatch routes one protocol line. It returns false when the session loop
// should terminate (STOP).
func (sess *session) dispatch(ctx context.Context, line string) bool {
	switch {
	case strings.HasPrefix(line, "REGISTER:"):
		sess.handleRegister(ctx, line)
	case strings.HasPrefix(line, "LOGIN:"):
		sess.handleLogin(line)
	case strings.HasPrefix(line, provisionCmdPrefix):
		sess.handleProvision(ctx, line)
	case strings.EqualFold(line, "STOP"):
		sess.handleStop()
		return false
	case strings.HasPrefix(line, "SET_LOCATION:"):
		sess.handleSetLocation(line)
	case line == "GET_WEATHER":
		sess.handleGetWeather()
	default:
		sess.writeLine(respUnknownCommand)
		sess.writeLine("")
		sess.srv.metrics.CommandsTotal.WithLabelValues("unknown", "error").Inc()
	}
	return true
}

func (sess *session) handleRegister(ctx context.Context, line string) {
	srv := sess.srv

	parts := strings.SplitN(line, ":", 4)
	if len(parts) != 4 {
		sess.writeLine(respBadRegister)
		srv.metrics.CommandsTotal.WithLabelValues("register", "error").Inc()
		srv.metrics.RegistrationsTotal.WithLabelValues("invalid").Inc()
		return
	}

	user := domain.User{Username: parts[1], Password: parts[2], Role: domain.Role(parts[3])}

	if !srv.users.InsertIfAbsent(user) {
		sess.writeLine(respDuplicateUser)
		srv.metrics.CommandsTotal.WithLabelValues("register", "error").Inc()
		srv.metrics.RegistrationsTotal.WithLabelValues("duplicate").Inc()
		return
	}

	if err := srv.sink.UserRegistered(ctx, user); err != nil {
		srv.logger.Warn("user mirror failed", "username", user.Username, "error", err)
		srv.metrics.SinkErrors.WithLabelValues("user_registered").Inc()
	}

	sess.writeLine(respRegistered)
	srv.metrics.CommandsTotal.WithLabelValues("register", "ok").Inc()
	srv.metrics.RegistrationsTotal.WithLabelValues("registered").Inc()
}

func (sess *session) handleLogin(line string) {
	srv := sess.srv

	parts := strings.SplitN(line, ":", 3)
	if len(parts) != 3 {
		sess.writeLine(respBadLogin)
		srv.metrics.CommandsTotal.WithLabelValues("login", "error").Inc()
		return
	}

	username, password := parts[1], parts[2]

	user, ok := srv.users.Find(username)
	if !ok || user.Password != password || !user.Role.Valid() {
		sess.writeLine(respBadCredentials)
		srv.metrics.CommandsTotal.WithLabelValues("login", "error").Inc()
		srv.metrics.LoginsTotal.WithLabelValues("failure").Inc()
		return
	}

	sess.role = user.Role
	sess.writeLine(string(user.Role))
	srv.metrics.CommandsTotal.WithLabelValues("login", "ok").Inc()
	srv.metrics.LoginsTotal.WithLabelValues("success").Inc()
}

func (sess *session) handleProvision(ctx context.Context, line string) {
	srv := sess.srv

	path := strings.TrimSpace(strings.TrimPrefix(line, provisionCmdPrefix))

	records, err := srv.provisioner.Provision(path)
	if err != nil {
		sess.writeLine(respProvisionErrPref + err.Error())
		sess.writeLine("")
		srv.metrics.CommandsTotal.WithLabelValues("provision", "error").Inc()
		srv.metrics.ProvisionBatches.WithLabelValues("rejected").Inc()
		return
	}

	if err := srv.sink.WeatherProvisioned(ctx, records); err != nil {
		srv.logger.Warn("weather mirror failed", "records", len(records), "error", err)
		srv.metrics.SinkErrors.WithLabelValues("weather_provisioned").Inc()
	}

	sess.writeLine(respProvisionOK)
	sess.writeLine("")
	srv.metrics.CommandsTotal.WithLabelValues("provision", "ok").Inc()
	srv.metrics.ProvisionBatches.WithLabelValues("applied").Inc()
}

func (sess *session) handleStop() {
	sess.writeLine(respServerStopped)
	sess.srv.metrics.CommandsTotal.WithLabelValues("stop", "ok").Inc()
	sess.srv.logger.Info("stop requested over protocol", "remote", sess.conn.RemoteAddr().String())
	sess.srv.requestStop()
}

func (sess *session) handleSetLocation(line string) {
	srv := sess.srv

	parts := strings.SplitN(line, ":", 4)
	if len(parts) != 4 {
		sess.writeLine(respBadSetLocation)
		srv.metrics.CommandsTotal.WithLabelValues("set_location", "error").Inc()
		return
	}

	lat, errLat := strconv.ParseFloat(parts[2], 64)
	lon, errLon := strconv.ParseFloat(parts[3], 64)
	if errLat != nil || errLon != nil {
		sess.writeLine(respBadSetLocation)
		srv.metrics.CommandsTotal.WithLabelValues("set_location", "error").Inc()
		return
	}

	sess.location = parts[1]
	sess.lat = lat
	sess.lon = lon

	sess.writeLine("Location updated to: " + sess.location)
	sess.writeLine("")
	srv.metrics.CommandsTotal.WithLabelValues("set_location", "ok").Inc()
}

func (sess *session) handleGetWeather() {
	srv := sess.srv

	if rec, ok := srv.weather.Find(sess.location); ok {
		sess.renderWeather(rec, true)
		srv.metrics.CommandsTotal.WithLabelValues("get_weather", "ok").Inc()
		return
	}

	records := srv.weather.AllRecords()
	closest, ok := domain.NearestLocation(records, sess.location, sess.lat, sess.lon, srv.radius)
	if !ok {
		sess.writeLine(respNoData)
		srv.metrics.CommandsTotal.WithLabelValues("get_weather", "error").Inc()
		return
	}

	// NearestLocation only returns known keys, so the lookup cannot miss.
	rec, _ := srv.weather.Find(closest)
	sess.writeLine("Closest location: " + closest)
	sess.renderWeather(rec, false)
	srv.metrics.CommandsTotal.WithLabelValues("get_weather", "ok").Inc()
}

// renderWeather writes the weather block. The exact-match path suffixes the
// temperature with °C while the closest-location path does not; existing
// clients parse both shapes, so the asymmetry is kept.
func (sess *session) renderWeather(rec domain.WeatherRecord, exact bool) {
	sess.writeLine("Current weather: " + rec.CurrentWeather)
	if exact {
		sess.writeLine("Temperature: " + formatTemp(rec.Temperature) + "°C")
	} else {
		sess.writeLine("Temperature: " + formatTemp(rec.Temperature))
	}
	sess.writeLine("Forecast:")
	for _, f := range rec.Forecast {
		sess.writeLine(fmt.Sprintf(" - %s: %d°C", f.Day, f.Temperature))
	}
	sess.writeLine("")
}

func (sess *session) writeLine(line string) {
	// Write errors surface at the post-dispatch flush.
	_, _ = sess.out.WriteString(line)
	_ = sess.out.WriteByte('\n')
}

func formatTemp(t float64) string {
	return strconv.FormatFloat(t, 'f', -1, 64)
}
