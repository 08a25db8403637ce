// Command seedgen writes deterministic seed fixtures for local development
// and the test suites: a weather JSON file and a users CSV in the exact
// formats the server loads at startup.
//
// Usage:
//
//	go run ./cmd/seedgen -weather-out data/weather_data.json -users-out data/users.txt
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/nimbusline/weatherline/internal/domain"
	"github.com/nimbusline/weatherline/internal/seed"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	weatherOut := flag.String("weather-out", "", "output path for the weather JSON fixture")
	usersOut := flag.String("users-out", "", "output path for the users CSV fixture")
	flag.Parse()

	if *weatherOut == "" || *usersOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -weather-out, -users-out")
	}

	if err := seed.WriteWeatherRecords(*weatherOut, sampleWeather()); err != nil {
		return err
	}
	if err := seed.WriteUsers(*usersOut, sampleUsers()); err != nil {
		return err
	}

	fmt.Printf("wrote %s and %s\n", *weatherOut, *usersOut)
	return nil
}

func sampleWeather() []domain.WeatherRecord {
	return []domain.WeatherRecord{
		{
			Location:       "Paris",
			CurrentWeather: "Cloudy",
			Temperature:    18.5,
			Latitude:       48.85,
			Longitude:      2.35,
			Forecast: []domain.ForecastEntry{
				{Day: "Monday", Temperature: 19},
				{Day: "Tuesday", Temperature: 17},
				{Day: "Wednesday", Temperature: 21},
			},
		},
		{
			Location:       "Lyon",
			CurrentWeather: "Sunny",
			Temperature:    21.5,
			Latitude:       45.76,
			Longitude:      4.84,
			Forecast: []domain.ForecastEntry{
				{Day: "Monday", Temperature: 23},
				{Day: "Tuesday", Temperature: 24},
			},
		},
		{
			Location:       "Oslo",
			CurrentWeather: "Snowy",
			Temperature:    -3.5,
			Latitude:       59.91,
			Longitude:      10.75,
			Forecast: []domain.ForecastEntry{
				{Day: "Monday", Temperature: -2},
				{Day: "Tuesday", Temperature: -6},
			},
		},
	}
}

func sampleUsers() []domain.User {
	return []domain.User{
		{Username: "admin", Password: "admin123", Role: domain.RoleAdmin},
		{Username: "alice", Password: "pw1", Role: domain.RoleUser},
		{Username: "bob", Password: "pw2", Role: domain.RoleUser},
	}
}
