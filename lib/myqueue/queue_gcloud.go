package myqueue

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	cloudtasks "cloud.google.com/go/cloudtasks/apiv2"
	taskspb "cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"
	grpcCodes "google.golang.org/grpc/codes"
	grpcStatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"
)

type gcloudTaskQueue struct {
	client *cloudtasks.Client
}

func init() {
	if os.Getenv("GOOGLE_CLOUD_PROJECT") != "" {
		New = newGcloudQueue
	}
}

func newGcloudQueue(c context.Context) (TaskQueuer, func(), error) {
	cloudTaskClient, err := cloudtasks.NewClient(c)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating cloudtask-client: %s", err)
	}
	return &gcloudTaskQueue{
			client: cloudTaskClient,
		}, func() {
			cloudTaskClient.Close()
		}, nil
}

func (q *gcloudTaskQueue) Enqueue(c context.Context, task Task) error {
	taskUID := composeTaskName(task.UID)
	_, err := q.client.CreateTask(c, &taskspb.CreateTaskRequest{
		Parent: composeQueueName(),
		Task: &taskspb.Task{
			Name:         taskUID,                                          // de-duplicate
			ScheduleTime: timestamppb.New(time.Now().Add(time.Second * 5)), // give the buyer's redirect a head start
			MessageType: &taskspb.Task_AppEngineHttpRequest{
				AppEngineHttpRequest: &taskspb.AppEngineHttpRequest{
					HttpMethod:  taskspb.HttpMethod_PUT,
					RelativeUri: task.WebhookURLPath,
					Body:        task.Payload,
				},
			},
			View: taskspb.Task_FULL,
		},
	})
	if err != nil {
		rsp, ok := grpcStatus.FromError(err)
		if ok && rsp.Code() == grpcCodes.AlreadyExists {
			log.Printf("task with id %s already exists -> ignore\n", taskUID)
			return nil
		}
		return fmt.Errorf("error submitting task to queue: %s", err)
	}
	return nil
}

func composeQueueName() string {
	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
	locationID := os.Getenv("LOCATION_ID")
	queueName := os.Getenv("QUEUE_NAME")
	if queueName == "" {
		queueName = "default"
	}
	return fmt.Sprintf("projects/%s/locations/%s/queues/%s", projectID, locationID, queueName)
}

func composeTaskName(taskUID string) string {
	return fmt.Sprintf("%s/tasks/%s", composeQueueName(), taskUID)
}
