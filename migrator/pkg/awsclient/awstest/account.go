package awstest

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/awsclient"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/common"
)

// STSServer answers GetCallerIdentity with a fixed account id.
type STSServer struct {
	account   string
	recorder  *Recorder
	AccountId string
	// Err, when set, is returned instead of the identity.
	Err error
}

func (s *STSServer) GetCallerIdentity(
	ctx context.Context,
	input *sts.GetCallerIdentityInput,
	opts ...func(*sts.Options),
) (*sts.GetCallerIdentityOutput, error) {
	s.recorder.record(s.account, "STS.GetCallerIdentity")
	if s.Err != nil {
		return nil, s.Err
	}
	return &sts.GetCallerIdentityOutput{
		Account: aws.String(s.AccountId),
		Arn:     aws.String(fmt.Sprintf("arn:aws:iam::%v:user/operator", s.AccountId)),
	}, nil
}

// Account groups the fakes of one account.
type Account struct {
	Name           common.Account
	ElastiCache    *ElastiCacheServer
	S3             *S3Server
	CloudFormation *CloudFormationServer
	IAM            *IAMServer
	Lambda         *LambdaServer
	STS            *STSServer
}

// NewAccount builds a full set of fakes for one account sharing recorder.
func NewAccount(name common.Account, accountId string, canonicalId string, recorder *Recorder) *Account {
	n := name.String()
	return &Account{
		Name:           name,
		ElastiCache:    NewElastiCacheServer(n, recorder),
		S3:             NewS3Server(n, canonicalId, recorder),
		CloudFormation: NewCloudFormationServer(n, recorder),
		IAM:            NewIAMServer(n, recorder),
		Lambda:         NewLambdaServer(n, recorder),
		STS:            &STSServer{account: n, recorder: recorder, AccountId: accountId},
	}
}

// Client returns an awsclient.Account backed by the fakes.
func (a *Account) Client() *awsclient.Account {
	return &awsclient.Account{
		Name:           a.Name,
		Region:         "us-east-1",
		ElastiCache:    a.ElastiCache,
		S3:             a.S3,
		CloudFormation: a.CloudFormation,
		IAM:            a.IAM,
		Lambda:         a.Lambda,
		STS:            a.STS,
	}
}

var (
	_ awsclient.ElastiCacheAPI    = (*ElastiCacheServer)(nil)
	_ awsclient.S3API             = (*S3Server)(nil)
	_ awsclient.CloudFormationAPI = (*CloudFormationServer)(nil)
	_ awsclient.IAMAPI            = (*IAMServer)(nil)
	_ awsclient.LambdaAPI         = (*LambdaServer)(nil)
	_ awsclient.STSAPI            = (*STSServer)(nil)
)
