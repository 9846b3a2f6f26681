/*
Package health provides the readiness checks used while bringing new nodes up.

A Checker performs one check and reports a Result. WaitHealthy repeats a
checker at a fixed interval until it succeeds or the retry budget in Config
is spent, tracking consecutive outcomes in a Status:

	checker := health.NewSSHChecker(node.ExternalIP, 22)
	status, err := health.WaitHealthy(ctx, checker, health.Config{
		Interval: 10 * time.Second,
		Retries:  10,
	})

The provisioner runs an SSHChecker against a freshly created instance before
it attempts bootstrap commands. The checker reads the server's version line
and writes nothing, so it never starts a key exchange.
*/
package health
