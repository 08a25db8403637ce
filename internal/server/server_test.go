package server_test

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nimbusline/weatherline/internal/domain"
	"github.com/nimbusline/weatherline/internal/provision"
	"github.com/nimbusline/weatherline/internal/seed"
	"github.com/nimbusline/weatherline/internal/server"
	"github.com/nimbusline/weatherline/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingSink struct {
	mu      sync.Mutex
	users   []domain.User
	batches [][]domain.WeatherRecord
}

func (c *capturingSink) UserRegistered(_ context.Context, u domain.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users = append(c.users, u)
	return nil
}

func (c *capturingSink) WeatherProvisioned(_ context.Context, recs []domain.WeatherRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, recs)
	return nil
}

type fixture struct {
	srv      *server.Server
	users    *store.UserStore
	weather  *store.WeatherStore
	sink     *capturingSink
	dataFile string
	cancel   context.CancelFunc
	done     chan error    // receives Serve's return value once
	finished chan struct{} // closed when Serve returns
}

func startServer(t *testing.T, seedRecords []domain.WeatherRecord, seedUsers []domain.User) *fixture {
	t.Helper()

	users := store.NewUserStore(nil, slog.Default())
	for _, u := range seedUsers {
		users.Upsert(u)
	}
	weather := store.NewWeatherStore(seedRecords)
	dataFile := filepath.Join(t.TempDir(), "weather_data.json")
	if seedRecords != nil {
		require.NoError(t, seed.WriteWeatherRecords(dataFile, seedRecords))
	}

	sink := &capturingSink{}
	srv := server.New(server.Options{
		Addr:        "127.0.0.1:0",
		Users:       users,
		Weather:     weather,
		Provisioner: provision.NewService(dataFile, weather, slog.Default()),
		Sink:        sink,
		Radius:      domain.DefaultNearestRadius,
		Logger:      slog.Default(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	finished := make(chan struct{})
	go func() {
		done <- srv.Serve(ctx)
		close(finished)
	}()

	require.Eventually(t, func() bool {
		return srv.CheckReadiness(context.Background()) == nil
	}, 2*time.Second, 10*time.Millisecond, "server never became ready")

	t.Cleanup(func() {
		cancel()
		select {
		case <-finished:
		case <-time.After(2 * time.Second):
			t.Error("server did not shut down")
		}
	})

	return &fixture{
		srv: srv, users: users, weather: weather, sink: sink,
		dataFile: dataFile, cancel: cancel, done: done, finished: finished,
	}
}

type client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, f *fixture) *client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", f.srv.Addr().String(), 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	return &client{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *client) send(line string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(c.t, err)
}

func (c *client) readLine() string {
	c.t.Helper()
	line, err := c.r.ReadString('\n')
	require.NoError(c.t, err)
	return line[:len(line)-1]
}

func TestRegisterAndLogin(t *testing.T) {
	f := startServer(t, nil, nil)
	c := dial(t, f)

	c.send("REGISTER:alice:pw1:user")
	assert.Equal(t, "SUCCESS: User registered.", c.readLine())

	c.send("REGISTER:alice:other:admin")
	assert.Equal(t, "ERROR: Username already exists.", c.readLine())

	c.send("LOGIN:alice:pw1")
	assert.Equal(t, "user", c.readLine())

	c.send("LOGIN:alice:wrong")
	assert.Equal(t, "ERROR: Invalid credentials or role.", c.readLine())

	c.send("LOGIN:nobody:pw")
	assert.Equal(t, "ERROR: Invalid credentials or role.", c.readLine())
}

func TestRegisterFormatError(t *testing.T) {
	f := startServer(t, nil, nil)
	c := dial(t, f)

	c.send("REGISTER:missing-fields")
	assert.Equal(t, "ERROR: Invalid register format. Expected: REGISTER:username:password:role", c.readLine())

	// Connection stays usable after a format error.
	c.send("REGISTER:bob:pw:admin")
	assert.Equal(t, "SUCCESS: User registered.", c.readLine())
}

func TestLoginFormatError(t *testing.T) {
	f := startServer(t, nil, nil)
	c := dial(t, f)

	c.send("LOGIN:justausername")
	assert.Equal(t, "ERROR: Invalid login format. Expected: LOGIN:username:password", c.readLine())
}

func TestLoginRejectsUnknownRole(t *testing.T) {
	f := startServer(t, nil, []domain.User{
		{Username: "root", Password: "pw", Role: "superadmin"},
	})
	c := dial(t, f)

	c.send("LOGIN:root:pw")
	assert.Equal(t, "ERROR: Invalid credentials or role.", c.readLine())
}

func TestRegisterInvokesSink(t *testing.T) {
	f := startServer(t, nil, nil)
	c := dial(t, f)

	c.send("REGISTER:carol:pw:user")
	assert.Equal(t, "SUCCESS: User registered.", c.readLine())

	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	require.Len(t, f.sink.users, 1)
	assert.Equal(t, "carol", f.sink.users[0].Username)
}

func TestGetWeatherExactMatch(t *testing.T) {
	f := startServer(t, []domain.WeatherRecord{
		{
			Location:       "Paris",
			CurrentWeather: "Cloudy",
			Temperature:    18.5,
			Latitude:       48.85,
			Longitude:      2.35,
			Forecast: []domain.ForecastEntry{
				{Day: "Monday", Temperature: 19},
				{Day: "Tuesday", Temperature: 17},
			},
		},
	}, nil)
	c := dial(t, f)

	c.send("SET_LOCATION:Paris:48.85:2.35")
	assert.Equal(t, "Location updated to: Paris", c.readLine())
	assert.Equal(t, "", c.readLine())

	c.send("GET_WEATHER")
	assert.Equal(t, "Current weather: Cloudy", c.readLine())
	assert.Equal(t, "Temperature: 18.5°C", c.readLine())
	assert.Equal(t, "Forecast:", c.readLine())
	assert.Equal(t, " - Monday: 19°C", c.readLine())
	assert.Equal(t, " - Tuesday: 17°C", c.readLine())
	assert.Equal(t, "", c.readLine())
}

func TestGetWeatherClosestLocation(t *testing.T) {
	f := startServer(t, []domain.WeatherRecord{
		{
			Location:       "Lyon",
			CurrentWeather: "Sunny",
			Temperature:    21.5,
			Latitude:       45.76,
			Longitude:      4.84,
			Forecast:       []domain.ForecastEntry{{Day: "Monday", Temperature: 23}},
		},
	}, nil)
	c := dial(t, f)

	// "Paris" has no record; Lyon is within the default radius.
	c.send("SET_LOCATION:Paris:48.85:2.35")
	c.readLine()
	c.readLine()

	c.send("GET_WEATHER")
	assert.Equal(t, "Closest location: Lyon", c.readLine())
	assert.Equal(t, "Current weather: Sunny", c.readLine())
	assert.Equal(t, "Temperature: 21.5", c.readLine())
	assert.Equal(t, "Forecast:", c.readLine())
	assert.Equal(t, " - Monday: 23°C", c.readLine())
	assert.Equal(t, "", c.readLine())
}

func TestGetWeatherNoData(t *testing.T) {
	f := startServer(t, []domain.WeatherRecord{
		{Location: "Sydney", Latitude: -33.87, Longitude: 151.21},
	}, nil)
	c := dial(t, f)

	c.send("SET_LOCATION:Reykjavik:64.15:-21.94")
	c.readLine()
	c.readLine()

	c.send("GET_WEATHER")
	assert.Equal(t, "No data available for this location or nearby.", c.readLine())
}

func TestGetWeatherBeforeSetLocation(t *testing.T) {
	// No record at the empty-string key and nothing within radius of (0,0).
	f := startServer(t, []domain.WeatherRecord{
		{Location: "Sydney", Latitude: -33.87, Longitude: 151.21},
	}, nil)
	c := dial(t, f)

	c.send("GET_WEATHER")
	assert.Equal(t, "No data available for this location or nearby.", c.readLine())
}

func TestSetLocationFormatError(t *testing.T) {
	f := startServer(t, nil, nil)
	c := dial(t, f)

	c.send("SET_LOCATION:OnlyAName")
	assert.Equal(t, "ERROR: Invalid location format. Expected: SET_LOCATION:location:latitude:longitude", c.readLine())

	c.send("SET_LOCATION:Paris:not-a-number:2.35")
	assert.Equal(t, "ERROR: Invalid location format. Expected: SET_LOCATION:location:latitude:longitude", c.readLine())

	// Session survives malformed input.
	c.send("SET_LOCATION:Paris:48.85:2.35")
	assert.Equal(t, "Location updated to: Paris", c.readLine())
	assert.Equal(t, "", c.readLine())
}

func TestUnknownCommand(t *testing.T) {
	f := startServer(t, nil, nil)
	c := dial(t, f)

	c.send("FROBNICATE")
	assert.Equal(t, "Unknown command.", c.readLine())
	assert.Equal(t, "", c.readLine())
}

func TestProvisionOverProtocol(t *testing.T) {
	f := startServer(t, []domain.WeatherRecord{
		{Location: "Lyon", CurrentWeather: "Sunny", Temperature: 21, Latitude: 45.76, Longitude: 4.84, Forecast: []domain.ForecastEntry{}},
	}, nil)
	c := dial(t, f)

	batch := filepath.Join(t.TempDir(), "batch.json")
	require.NoError(t, os.WriteFile(batch, []byte(`[
	  {"location": "Oslo", "currentWeather": "Snowy", "temperature": -3.5,
	   "latitude": 59.91, "longitude": 10.75,
	   "forecast": [{"day": "Monday", "temperature": -2}]}
	]`), 0o644))

	c.send("PROVISION WEATHER DATA:" + batch)
	assert.Equal(t, "Weather data provisioned successfully.", c.readLine())
	assert.Equal(t, "", c.readLine())

	assert.Equal(t, 2, f.weather.Len())

	f.sink.mu.Lock()
	require.Len(t, f.sink.batches, 1)
	f.sink.mu.Unlock()

	// The new record is immediately queryable.
	c.send("SET_LOCATION:Oslo:59.91:10.75")
	c.readLine()
	c.readLine()
	c.send("GET_WEATHER")
	assert.Equal(t, "Current weather: Snowy", c.readLine())
	assert.Equal(t, "Temperature: -3.5°C", c.readLine())
	assert.Equal(t, "Forecast:", c.readLine())
	assert.Equal(t, " - Monday: -2°C", c.readLine())
	assert.Equal(t, "", c.readLine())
}

func TestProvisionInvalidBatchKeepsServerRunning(t *testing.T) {
	f := startServer(t, nil, nil)
	c := dial(t, f)

	batch := filepath.Join(t.TempDir(), "batch.json")
	require.NoError(t, os.WriteFile(batch, []byte(`[{"location": "Oslo"}]`), 0o644))

	c.send("PROVISION WEATHER DATA:" + batch)
	line := c.readLine()
	assert.Contains(t, line, "Error provisioning weather data:")
	assert.Equal(t, "", c.readLine())

	assert.Equal(t, 0, f.weather.Len())

	// Server keeps serving this and new sessions.
	c.send("REGISTER:dave:pw:user")
	assert.Equal(t, "SUCCESS: User registered.", c.readLine())
}

func TestStopCommand(t *testing.T) {
	f := startServer(t, nil, nil)
	c := dial(t, f)

	c.send("STOP")
	assert.Equal(t, "SERVER_STOPPED", c.readLine())

	// The session's connection closes.
	_, err := c.r.ReadString('\n')
	assert.Error(t, err)

	// The accept loop exits.
	select {
	case err := <-f.done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after STOP")
	}

	// No new connections are accepted.
	conn, err := net.DialTimeout("tcp", f.srv.Addr().String(), 500*time.Millisecond)
	if err == nil {
		conn.Close()
		t.Fatal("expected dial to fail after STOP")
	}
}

func TestStopIsCaseInsensitive(t *testing.T) {
	f := startServer(t, nil, nil)
	c := dial(t, f)

	c.send("stop")
	assert.Equal(t, "SERVER_STOPPED", c.readLine())
}

func TestStopLeavesOpenSessionsAlive(t *testing.T) {
	f := startServer(t, nil, nil)
	survivor := dial(t, f)
	stopper := dial(t, f)

	stopper.send("STOP")
	assert.Equal(t, "SERVER_STOPPED", stopper.readLine())

	select {
	case <-f.finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after STOP")
	}

	// The other session still gets answers.
	survivor.send("REGISTER:erin:pw:user")
	assert.Equal(t, "SUCCESS: User registered.", survivor.readLine())
}

func TestConcurrentRegisterSingleSuccess(t *testing.T) {
	f := startServer(t, nil, nil)

	const sessions = 8
	results := make(chan string, sessions)
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < sessions; i++ {
		c := dial(t, f)
		wg.Add(1)
		go func(c *client) {
			defer wg.Done()
			<-start
			if _, err := c.conn.Write([]byte("REGISTER:frank:pw:user\n")); err != nil {
				results <- "write error: " + err.Error()
				return
			}
			line, err := c.r.ReadString('\n')
			if err != nil {
				results <- "read error: " + err.Error()
				return
			}
			results <- line[:len(line)-1]
		}(c)
	}
	close(start)
	wg.Wait()
	close(results)

	var successes, duplicates int
	for line := range results {
		switch line {
		case "SUCCESS: User registered.":
			successes++
		case "ERROR: Username already exists.":
			duplicates++
		default:
			t.Fatalf("unexpected response: %q", line)
		}
	}
	assert.Equal(t, 1, successes, "exactly one registration may win")
	assert.Equal(t, sessions-1, duplicates)
}

func TestEndToEndFlow(t *testing.T) {
	f := startServer(t, []domain.WeatherRecord{
		{
			Location:       "Lyon",
			CurrentWeather: "Sunny",
			Temperature:    21.5,
			Latitude:       48.7,
			Longitude:      2.2,
			Forecast:       []domain.ForecastEntry{{Day: "Monday", Temperature: 23}},
		},
	}, nil)
	c := dial(t, f)

	c.send("REGISTER:alice:pw1:user")
	assert.Equal(t, "SUCCESS: User registered.", c.readLine())

	c.send("LOGIN:alice:pw1")
	assert.Equal(t, "user", c.readLine())

	c.send("SET_LOCATION:Paris:48.8:2.3")
	assert.Equal(t, "Location updated to: Paris", c.readLine())
	assert.Equal(t, "", c.readLine())

	c.send("GET_WEATHER")
	assert.Equal(t, "Closest location: Lyon", c.readLine())
}
