// Package healthcheck probes upstream health endpoints and drives the
// periodic health-check loop. A probe succeeds only when the upstream answers
// GET <base>/health with 200 and a JSON body whose status is "healthy".
package healthcheck
