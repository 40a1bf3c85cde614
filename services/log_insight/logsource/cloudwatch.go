// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/smithy-go"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/kodiak/services/log_insight/datatypes"
)

// describePageLimit is the CloudWatch cap on streams per DescribeLogStreams page.
const describePageLimit = 50

// CloudWatchConfig configures the CloudWatch Logs adapter.
//
// AccessKeyID/SecretAccessKey switch the client to static credentials
// (local stacks, CI); when empty the default AWS credential chain is
// used. Endpoint overrides the API endpoint for localstack-style
// deployments. RequestsPerSecond paces API calls below the account
// quota; zero falls back to 5.
type CloudWatchConfig struct {
	Region            string
	Endpoint          string
	AccessKeyID       string
	SecretAccessKey   string
	RequestsPerSecond float64
}

// CloudWatch implements Adapter on top of CloudWatch Logs.
//
// # Thread Safety
//
// Safe for concurrent use. The rate limiter is shared across calls so
// concurrent stream fetches cannot exceed the configured pace in
// aggregate.
type CloudWatch struct {
	client  *cloudwatchlogs.Client
	limiter *rate.Limiter
}

// NewCloudWatch builds the adapter.
func NewCloudWatch(ctx context.Context, cfg CloudWatchConfig) (*CloudWatch, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	var awsCfg aws.Config
	if cfg.AccessKeyID != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		awsCfg = aws.Config{
			Region:      region,
			Credentials: aws.NewCredentialsCache(creds),
		}
	} else {
		loaded, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		if err != nil {
			return nil, fmt.Errorf("loading aws config: %w", err)
		}
		awsCfg = loaded
	}

	client := cloudwatchlogs.NewFromConfig(awsCfg, func(o *cloudwatchlogs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}

	return &CloudWatch{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}, nil
}

// ListStreams returns up to limit streams ordered by last event time,
// newest first. A log group that does not exist yet reads as having no
// streams rather than as a source failure.
func (c *CloudWatch) ListStreams(ctx context.Context, logGroup string, limit int) ([]StreamInfo, error) {
	var (
		streams   []StreamInfo
		nextToken *string
	)

	for len(streams) < limit {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		pageLimit := int32(limit - len(streams))
		if pageLimit > describePageLimit {
			pageLimit = describePageLimit
		}

		out, err := c.client.DescribeLogStreams(ctx, &cloudwatchlogs.DescribeLogStreamsInput{
			LogGroupName: aws.String(logGroup),
			OrderBy:      cwtypes.OrderByLastEventTime,
			Descending:   aws.Bool(true),
			Limit:        aws.Int32(pageLimit),
			NextToken:    nextToken,
		})
		if err != nil {
			if isResourceNotFound(err) {
				slog.Debug("log group not found, treating as empty",
					"log_group", logGroup,
				)
				return nil, nil
			}
			return nil, fmt.Errorf("describe log streams %q: %w", logGroup, err)
		}

		for _, ls := range out.LogStreams {
			info := StreamInfo{Name: aws.ToString(ls.LogStreamName)}
			if ls.LastEventTimestamp != nil {
				info.LastEventTime = time.UnixMilli(*ls.LastEventTimestamp).UTC()
			}
			streams = append(streams, info)
		}

		if out.NextToken == nil || len(out.LogStreams) == 0 {
			break
		}
		nextToken = out.NextToken
	}

	if len(streams) > limit {
		streams = streams[:limit]
	}
	return streams, nil
}

// GetEvents fetches one page, walking the stream newest to oldest.
//
// CloudWatch signals exhaustion by echoing the backward token back, so
// a page whose token equals the request token closes the walk.
func (c *CloudWatch) GetEvents(ctx context.Context, q EventQuery) (*EventPage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	in := &cloudwatchlogs.GetLogEventsInput{
		LogGroupName:  aws.String(q.LogGroup),
		LogStreamName: aws.String(q.Stream),
		StartTime:     aws.Int64(q.Start.UnixMilli()),
		EndTime:       aws.Int64(q.End.UnixMilli()),
		StartFromHead: aws.Bool(false),
	}
	if q.Limit > 0 {
		in.Limit = aws.Int32(int32(q.Limit))
	}
	if q.PageToken != "" {
		in.NextToken = aws.String(q.PageToken)
	}

	out, err := c.client.GetLogEvents(ctx, in)
	if err != nil {
		if isResourceNotFound(err) {
			return &EventPage{}, nil
		}
		return nil, fmt.Errorf("get log events %s/%s: %w", q.LogGroup, q.Stream, err)
	}

	page := &EventPage{
		Events: make([]datatypes.LogEvent, 0, len(out.Events)),
	}
	for _, ev := range out.Events {
		page.Events = append(page.Events, datatypes.LogEvent{
			Stream:    q.Stream,
			Timestamp: time.UnixMilli(aws.ToInt64(ev.Timestamp)).UTC(),
			Message:   aws.ToString(ev.Message),
		})
	}

	next := aws.ToString(out.NextBackwardToken)
	if next != q.PageToken && len(out.Events) > 0 {
		page.NextToken = next
	}

	return page, nil
}

func isResourceNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "ResourceNotFoundException"
	}
	return false
}
