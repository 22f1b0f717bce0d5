package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/xraph/jobhook/admin"
	"github.com/xraph/jobhook/api"
)

// slowRetrier stands in for a bulk retry that outlives the server's
// WriteTimeout.
type slowRetrier struct{ delay time.Duration }

func (r slowRetrier) Retry(context.Context, admin.Request) (*admin.Report, error) {
	time.Sleep(r.delay)
	return &admin.Report{Matched: 1, Retried: 1}, nil
}

var _ = Describe("Bulk retry write deadline", func() {
	It("delivers a report that takes longer than the server WriteTimeout", func() {
		handler := api.New(stubExecutor{}, api.WithAdmin(slowRetrier{delay: 200 * time.Millisecond}, "k")).Handler()
		srv := httptest.NewUnstartedServer(handler)
		srv.Config.WriteTimeout = 50 * time.Millisecond
		srv.Start()
		DeferCleanup(srv.Close)

		req, err := http.NewRequest(http.MethodPost, srv.URL+api.RetryRoute, strings.NewReader(`{}`))
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set(api.HeaderAdminAPIKey, "k")

		resp, err := srv.Client().Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var report admin.Report
		Expect(json.NewDecoder(resp.Body).Decode(&report)).To(Succeed())
		Expect(report.Retried).To(Equal(1))
	})
})
