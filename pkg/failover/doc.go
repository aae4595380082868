// Package failover routes notifications to alternate channels when their
// primary channel keeps failing.
//
// Per-tenant rules map a failing primary channel to an ordered fallback
// chain, optionally restricted by equality conditions on priority, event
// type, or tenant id. The Manager resolves matching rules and retries
// delivery through the orchestrator one fallback channel at a time,
// stopping at the first success.
//
// # Architecture
//
//  1. Configure validates the whole rule set before applying it; one
//     invalid rule rejects the set and the previous set stays active.
//  2. GetFailoverChannels unions the fallbacks of all matching enabled
//     rules, dropping duplicates and the failed primary.
//  3. ExecuteFailover sends a tagged copy restricted to each fallback
//     channel in turn; failover metadata keys record the original
//     channel and reason for downstream consumers.
//  4. Rule sets can be declared in a YAML file and loaded with
//     ConfigureFromFile.
//
// # Usage
//
//	mgr := failover.NewManager(svc)
//	_ = mgr.Configure("acme", []failover.Rule{{
//	    Name:             "email-to-sms",
//	    PrimaryChannel:   notification.ChannelEmail,
//	    FailoverChannels: []notification.Channel{notification.ChannelSMS},
//	    Enabled:          true,
//	}})
//
//	result := mgr.ExecuteFailover(ctx, n, notification.ChannelEmail, "smtp outage")
//	if result.Success {
//	    // delivered via result.UsedChannel
//	}
package failover
