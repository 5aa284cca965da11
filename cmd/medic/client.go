package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/capatazlib/go-medic/api"
	"github.com/capatazlib/go-medic/health"
)

func check(c *cli.Context) error {
	resp, err := http.Post(fmt.Sprintf("%s/check", hostname), contentType, nil)
	if err := checkResp(err, resp, http.StatusOK, "run check"); err != nil {
		return err
	}
	defer resp.Body.Close()

	result := health.CycleResult{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return errorf("failed to decode check result: %s", err)
	}
	if result.Skipped {
		fmt.Printf("check skipped: %s\n", result.SkipReason)
		return nil
	}
	for _, ev := range result.Remediations {
		fmt.Println(ev.Line())
	}
	printSnapshot(result.Snapshot)
	return nil
}

func services(c *cli.Context) error {
	resp, err := http.Get(fmt.Sprintf("%s/services", hostname))
	if err := checkResp(err, resp, http.StatusOK, "list services"); err != nil {
		return err
	}
	defer resp.Body.Close()

	snap := health.Snapshot{}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return errorf("failed to decode services: %s", err)
	}
	if snap.CheckedAt.IsZero() {
		fmt.Println("no check cycle completed yet")
		return nil
	}
	printSnapshot(snap)
	return nil
}

func events(c *cli.Context) error {
	query := url.Values{}
	if service := c.String("service"); service != "" {
		query.Set("service", service)
	}
	query.Set("limit", strconv.Itoa(c.Int("limit")))

	resp, err := http.Get(fmt.Sprintf("%s/events?%s", hostname, query.Encode()))
	if err := checkResp(err, resp, http.StatusOK, "list events"); err != nil {
		return err
	}
	defer resp.Body.Close()

	evs := api.Events{}
	if err := json.NewDecoder(resp.Body).Decode(&evs); err != nil {
		return errorf("failed to decode events: %s", err)
	}
	for _, ev := range evs.Events {
		fmt.Printf("%s %s\n", ev.Created.Format("2006-01-02 15:04:05"), ev.Line())
	}
	return nil
}

func printSnapshot(snap health.Snapshot) {
	fmt.Printf("%s %s (%s)\n", snap.ServerID, strings.ToUpper(string(snap.Overall)), snap.CheckedAt.Format("15:04:05"))
	for _, report := range snap.Services {
		critical := ""
		if report.Critical {
			critical = " critical"
		}
		fmt.Printf(
			"  %-20s %-10s %-10s %s%s\n",
			report.Name, report.State, report.Health, report.Phase, critical,
		)
	}
}

func checkResp(err error, resp *http.Response, expectedCode int, caller string) error {
	if err != nil {
		return errorf("failed to %s: %s", caller, err)
	}
	if resp.StatusCode != expectedCode {
		defer resp.Body.Close()
		e := api.Error{}
		err := json.NewDecoder(resp.Body).Decode(&e)
		if err != nil {
			e.Error = "unknown error"
		}
		return errorf("failed to %s: %s", caller, e.Error)
	}
	return nil
}
