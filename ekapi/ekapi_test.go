package ekapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danthegoodman1/ekdb/config"
	"github.com/danthegoodman1/ekdb/utils"
)

var example = config.Table{Name: "Example", PrimaryKey: "Id"}

func newTestClient(t *testing.T, baseURL string, retries uint64) *Client {
	t.Helper()
	c, err := NewClient(config.Sync{BaseURL: baseURL, PerPage: 100, MaxRetries: retries})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestBatchURL(t *testing.T) {
	c := newTestClient(t, "https://avoindata.eduskunta.fi/api/v1/", 0)
	got := c.BatchURL(example, 101, 100)
	want := "https://avoindata.eduskunta.fi/api/v1/tables/Example/batch?perPage=100&pkName=Id&pkStartValue=101"
	if got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestFetchPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tables/Example/batch" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("pkStartValue") != "1" || r.URL.Query().Get("pkName") != "Id" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"columnNames":["Id","Name"],"rowData":[[1,"a"],[2,null]],"hasMore":true,"pkLastValue":2}`))
	}))
	defer srv.Close()

	page, err := newTestClient(t, srv.URL, 0).FetchPage(context.Background(), example, 1, 100)
	if err != nil {
		t.Fatal(err)
	}
	if !page.HasMore || page.PKLastValue != 2 || len(page.RowData) != 2 {
		t.Fatalf("unexpected page %+v", page)
	}
	if n, ok := page.RowData[0][0].(json.Number); !ok || n.String() != "1" {
		t.Fatalf("expected json.Number 1, got %#v", page.RowData[0][0])
	}
	if page.RowData[1][1] != nil {
		t.Fatalf("expected nil, got %#v", page.RowData[1][1])
	}
}

func TestFetchPageBadStatusIsPermanent(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "no such table", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, 3).FetchPage(context.Background(), example, 1, 100)
	if !errors.Is(err, ErrBadStatus) {
		t.Fatalf("expected ErrBadStatus, got %v", err)
	}
	if !utils.IsPermanent(err) {
		t.Fatal("expected 404 to be permanent")
	}
	if calls != 1 {
		t.Fatalf("expected no retries, got %d calls", calls)
	}
}

func TestFetchPageRetriesServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "oops", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"columnNames":["Id"],"rowData":[],"hasMore":false,"pkLastValue":0}`))
	}))
	defer srv.Close()

	page, err := newTestClient(t, srv.URL, 1).FetchPage(context.Background(), example, 1, 100)
	if err != nil {
		t.Fatal(err)
	}
	if page.HasMore || calls != 2 {
		t.Fatalf("unexpected page %+v after %d calls", page, calls)
	}
}

func TestDecodePage(t *testing.T) {
	if _, err := DecodePage(strings.NewReader(`{"rowData":[]}`)); err == nil {
		t.Fatal("expected missing columnNames to fail")
	}
	if _, err := DecodePage(strings.NewReader(`{"columnNames":["Id","X"],"rowData":[[1]]}`)); err == nil {
		t.Fatal("expected short row to fail")
	}
	if _, err := DecodePage(strings.NewReader(`not json`)); err == nil {
		t.Fatal("expected bad json to fail")
	}
}
